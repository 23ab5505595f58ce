package dialect

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/omnirelay/llm-gateway/internal/chat"
)

// OpenAIAdapter speaks the OpenAI-compatible wire format. Since upstreams
// already answer in this format, the response side is a transparent relay:
// status, body and content-type pass through verbatim, streamed bytes are
// not transcoded.
type OpenAIAdapter struct{}

// NewOpenAIAdapter creates the OpenAI dialect adapter.
func NewOpenAIAdapter() *OpenAIAdapter { return &OpenAIAdapter{} }

// Name implements Adapter.
func (a *OpenAIAdapter) Name() string { return "openai" }

// ParseRequest implements Adapter. Streaming defaults to off.
func (a *OpenAIAdapter) ParseRequest(body []byte) (*chat.Request, error) {
	var req struct {
		Model    string         `json:"model"`
		Messages []chat.Message `json:"messages"`
		Stream   *bool          `json:"stream"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &ClientError{Message: "invalid JSON body"}
	}
	if req.Model == "" {
		return nil, &ClientError{Message: "model is required"}
	}
	if len(req.Messages) == 0 {
		return nil, &ClientError{Message: "messages is required"}
	}

	stream := false
	if req.Stream != nil {
		stream = *req.Stream
	}
	return &chat.Request{Model: req.Model, Messages: req.Messages, Stream: stream}, nil
}

// WriteResponse implements Adapter: verbatim relay of the upstream reply.
func (a *OpenAIAdapter) WriteResponse(w http.ResponseWriter, resp *http.Response, _ string) {
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Debug().Err(err).Msg("relay copy interrupted")
	}
}

// StreamResponse implements Adapter: upstream bytes are forwarded unchanged
// with the upstream's content-type, flushed as they arrive.
func (a *OpenAIAdapter) StreamResponse(w http.ResponseWriter, resp *http.Response, _ string) {
	defer func() { _ = resp.Body.Close() }()

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "text/event-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("stream relay ended early")
			}
			return
		}
	}
}

// WriteError implements Adapter with the OpenAI error envelope.
func (a *OpenAIAdapter) WriteError(w http.ResponseWriter, status int, message string) {
	errType := "api_error"
	if status >= 400 && status < 500 {
		errType = "invalid_request_error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": message, "type": errType},
	})
}

var _ Adapter = (*OpenAIAdapter)(nil)
