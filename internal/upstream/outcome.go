// Package upstream issues chat-completion calls to provider APIs and owns
// the retry, failover and auth-refresh contract.
package upstream

import (
	"errors"
	"net/http"
)

// Kind classifies one upstream attempt. Retry decisions branch on this
// value exhaustively instead of catching errors ad hoc.
type Kind int

const (
	// KindSuccess carries a usable 2xx response.
	KindSuccess Kind = iota

	// KindRetryable covers non-2xx statuses, network errors, and rate-limit
	// markers smuggled inside a 2xx body. The caller rotates to the next
	// credential and retries.
	KindRetryable

	// KindAuthExpired is a 401; meaningful for OAuth-backed providers,
	// where it triggers one refresh-and-retry.
	KindAuthExpired

	// KindFatal ends the request immediately (no credential configured,
	// caller cancellation).
	KindFatal
)

// Outcome is the result of a single attempt.
type Outcome struct {
	Kind Kind
	Resp *http.Response // set only for KindSuccess
	Err  error
}

// ErrNoCredential is returned when a provider has no usable credential.
// Fatal for the request: retrying cannot conjure a key.
var ErrNoCredential = errors.New("no credential configured for provider")

// ErrAttemptsExhausted is returned when the retry budget is spent.
var ErrAttemptsExhausted = errors.New("upstream attempts exhausted")
