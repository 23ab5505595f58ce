// Package dialect translates between the gateway's canonical chat model and
// the three external wire formats it speaks: Ollama-style local inference,
// OpenAI-compatible, and Anthropic-style messages.
//
// Each adapter owns request parsing, non-streaming response shaping, a
// streaming transcoder, and its dialect's error document shape. All three
// streaming transcoders consume the same upstream SSE delta stream.
package dialect

import (
	"net/http"

	"github.com/omnirelay/llm-gateway/internal/chat"
)

// Adapter converts one external dialect to and from the canonical model.
type Adapter interface {
	// Name identifies the dialect ("ollama", "openai", "anthropic").
	Name() string

	// ParseRequest converts an inbound body into a canonical request.
	// A request without a model or without messages yields a *ClientError,
	// which must never be forwarded upstream.
	ParseRequest(body []byte) (*chat.Request, error)

	// WriteResponse shapes a full (non-streaming) upstream response into
	// the dialect's document form. Malformed upstream JSON produces a
	// dialect-shaped error document, never a failure.
	WriteResponse(w http.ResponseWriter, resp *http.Response, requestedModel string)

	// StreamResponse transcodes the upstream token stream into the
	// dialect's streaming framing. It closes the upstream body exactly
	// once, on every exit path.
	StreamResponse(w http.ResponseWriter, resp *http.Response, requestedModel string)

	// WriteError emits the dialect's error document with the given status.
	WriteError(w http.ResponseWriter, status int, message string)
}

// ClientError marks a request the caller got wrong: surfaced immediately as
// a 400 in the dialect's shape, never retried, never sent upstream.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string { return e.Message }
