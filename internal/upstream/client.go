package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omnirelay/llm-gateway/internal/config"
	"github.com/omnirelay/llm-gateway/internal/monitoring"
	"github.com/omnirelay/llm-gateway/internal/providers"
	"github.com/omnirelay/llm-gateway/internal/utils"
)

// Client executes upstream chat-completion calls with credential rotation
// and bounded retries. One Client is shared by all requests; all per-call
// state lives on the stack of Send.
type Client struct {
	http        *http.Client
	maxAttempts int
	backoff     time.Duration
}

// NewClient builds the shared upstream client. The transport bounds the
// TCP connect and the wait for response headers separately: connects fail
// fast, but a large generation may take minutes before its first byte.
func NewClient(maxAttempts int, backoff time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   config.DefaultDialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ResponseHeaderTimeout: config.DefaultHeaderTimeout,
				MaxIdleConnsPerHost:   16,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Send posts payload to the profile's chat-completions endpoint and returns
// the first usable response.
//
// Retry contract: a retryable failure sleeps the fixed backoff, obtains the
// next credential (rotating providers advance their cursor, abandoning the
// bad key) and consumes one attempt. A 401 triggers exactly one credential
// recovery; a successful recovery retries without consuming an attempt,
// anything after that counts as retryable. Caller cancellation stops the
// loop immediately. The returned response body is live; the caller owns
// closing it.
func (c *Client) Send(ctx context.Context, profile *providers.Profile, payload []byte, wantStream bool) (*http.Response, error) {
	endpoint := profile.BaseURL + "/chat/completions"
	authRetryDone := false
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cred, ok := profile.Credentials.Credential()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoCredential, profile.Name)
		}

		out := c.attempt(ctx, endpoint, payload, cred, wantStream)
		switch out.Kind {
		case KindSuccess:
			return out.Resp, nil

		case KindFatal:
			return nil, out.Err

		case KindAuthExpired:
			if !authRetryDone {
				authRetryDone = true
				recovered := profile.Credentials.Recover(ctx, cred)
				result := "failure"
				if recovered {
					result = "success"
				}
				monitoring.AuthRefreshes.WithLabelValues(profile.Name, result).Inc()
				if recovered {
					log.Info().Str("provider", profile.Name).Msg("credential recovered after 401, retrying")
					attempt-- // refresh retry is free
					continue
				}
			}
			lastErr = out.Err
			c.waitBackoff(ctx, profile.Name, attempt)

		case KindRetryable:
			lastErr = out.Err
			c.waitBackoff(ctx, profile.Name, attempt)
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrAttemptsExhausted, profile.Name, c.maxAttempts, lastErr)
}

func (c *Client) waitBackoff(ctx context.Context, provider string, attempt int) {
	monitoring.UpstreamRetries.WithLabelValues(provider).Inc()
	log.Warn().
		Str("provider", provider).
		Int("attempt", attempt+1).
		Int("max_attempts", c.maxAttempts).
		Msg("upstream attempt failed, backing off")
	select {
	case <-time.After(c.backoff):
	case <-ctx.Done():
	}
}

// attempt performs one HTTP POST and classifies the result.
func (c *Client) attempt(ctx context.Context, endpoint string, payload []byte, cred string, wantStream bool) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Outcome{Kind: KindFatal, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Caller went away; a cancellation is never retried.
			return Outcome{Kind: KindFatal, Err: ctx.Err()}
		}
		return Outcome{Kind: KindRetryable, Err: fmt.Errorf("upstream request: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		body := drain(resp)
		log.Warn().
			Str("endpoint", endpoint).
			Str("key", utils.MaskKey(cred)).
			Str("body", utils.TruncateForLog(body, 256)).
			Msg("upstream 401")
		return Outcome{Kind: KindAuthExpired, Err: fmt.Errorf("upstream 401: %s", utils.TruncateForLog(body, 128))}

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body := drain(resp)
		log.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("key", utils.MaskKey(cred)).
			Str("body", utils.TruncateForLog(body, 256)).
			Msg("upstream error status")
		return Outcome{Kind: KindRetryable, Err: fmt.Errorf("upstream status %d: %s", resp.StatusCode, utils.TruncateForLog(body, 128))}
	}

	// Some providers deliver rate-limit failures with a success status.
	// Only non-streaming responses are inspected; a streaming body cannot
	// be read ahead without delaying the first token.
	if !wantStream {
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return Outcome{Kind: KindRetryable, Err: fmt.Errorf("read upstream body: %w", err)}
		}
		if marker := softFailureMarker(body); marker != "" {
			log.Warn().Str("endpoint", endpoint).Str("marker", marker).Msg("rate limit inside 2xx body")
			return Outcome{Kind: KindRetryable, Err: fmt.Errorf("upstream soft failure: %s", marker)}
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}

	return Outcome{Kind: KindSuccess, Resp: resp}
}

// softFailureMarkers are substrings that mark a failed generation delivered
// with a 2xx status.
var softFailureMarkers = []string{
	"resource_exhausted",
	"rate_limit_exceeded",
	"rate limit exceeded",
	"quota exceeded",
	"overloaded_error",
}

func softFailureMarker(body []byte) string {
	// Only plausible error documents are scanned; ordinary completions may
	// legitimately talk about rate limits.
	if !bytes.Contains(body, []byte(`"error"`)) {
		return ""
	}
	lower := strings.ToLower(string(body))
	for _, marker := range softFailureMarkers {
		if strings.Contains(lower, marker) {
			return marker
		}
	}
	return ""
}

func drain(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	_ = resp.Body.Close()
	return string(body)
}
