// Package auth provides the per-provider credential stores: rotating static
// key sets and refreshable OAuth sessions.
//
// A store instance is a process-wide singleton per provider, created at
// startup and shared by all concurrent requests. The rotating cursor is the
// only state shared across OS processes; it is serialized through an
// advisory file lock so independent gateway processes cycle keys without
// ever reusing a pre-increment cursor.
package auth

import "context"

// Store hands out one credential per upstream attempt.
type Store interface {
	// Provider returns the provider name the store belongs to (for logging).
	Provider() string

	// Credential returns the credential to use for the next attempt.
	// ok is false when no credential is configured; callers must treat that
	// as fatal for the provider, not retryable.
	Credential() (cred string, ok bool)

	// Recover is invoked after an upstream 401 with the credential that
	// failed. It reports whether a retry is worthwhile: OAuth sessions
	// refresh their access token, rotating key sets decline (rotation
	// itself is their failover).
	Recover(ctx context.Context, stale string) bool
}
