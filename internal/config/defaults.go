// Package config - defaults.go centralizes magic numbers and default values.
//
// All defaults that appear in more than one place live here so they stay
// auditable.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultPort is the listen port when PORT is unset.
const DefaultPort = 5005

// MaxRequestBodySize is the maximum allowed inbound body (50MB); large
// enough for conversations that embed base64 screenshots.
const MaxRequestBodySize = 50 * 1024 * 1024

// =============================================================================
// UPSTREAM HTTP
// =============================================================================

// DefaultDialTimeout bounds the TCP connect to an upstream.
const DefaultDialTimeout = 50 * time.Second

// DefaultHeaderTimeout bounds the wait for upstream response headers.
// Generous because large generations can take minutes to first byte.
const DefaultHeaderTimeout = 300 * time.Second

// DefaultMaxAttempts is the retry budget for one logical request.
const DefaultMaxAttempts = 10

// DefaultRetryBackoff is the fixed sleep between retries.
const DefaultRetryBackoff = 1 * time.Second

// =============================================================================
// PROVIDERS
// =============================================================================

// DefaultThinkingBudget is the reasoning-token budget requested from
// providers that support an explicit thinking mode.
const DefaultThinkingBudget = 24576

// DefaultQwenRefreshURL is the token exchange endpoint for the Qwen OAuth
// session.
const DefaultQwenRefreshURL = "https://portal.qwen.ai/api/v1/oauth/token"

// =============================================================================
// STREAMING
// =============================================================================

// StreamScanBufferSize is the line buffer ceiling for upstream SSE reads.
// Single deltas carrying long tool output can exceed bufio's default 64KB.
const StreamScanBufferSize = 1024 * 1024
