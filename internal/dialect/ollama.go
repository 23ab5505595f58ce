package dialect

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/omnirelay/llm-gateway/internal/chat"
	"github.com/omnirelay/llm-gateway/internal/utils"
)

// OllamaAdapter speaks the local-inference wire format: JSON request on
// /api/chat, NDJSON streaming response. Streaming defaults to on, matching
// local-inference clients.
type OllamaAdapter struct{}

// NewOllamaAdapter creates the Ollama dialect adapter.
func NewOllamaAdapter() *OllamaAdapter { return &OllamaAdapter{} }

// Name implements Adapter.
func (a *OllamaAdapter) Name() string { return "ollama" }

// ParseRequest implements Adapter.
func (a *OllamaAdapter) ParseRequest(body []byte) (*chat.Request, error) {
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

	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}
	return &chat.Request{Model: req.Model, Messages: req.Messages, Stream: stream}, nil
}

// ollamaChunk is one NDJSON object of the streaming response.
type ollamaChunk struct {
	Model     string        `json:"model"`
	CreatedAt string        `json:"created_at"`
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`

	TotalDuration int64  `json:"total_duration,omitempty"`
	EvalDuration  int64  `json:"eval_duration,omitempty"`
	Error         string `json:"error,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func newOllamaChunk(model, content string, done bool) ollamaChunk {
	return ollamaChunk{
		Model:     model,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Message:   ollamaMessage{Role: "assistant", Content: content},
		Done:      done,
	}
}

// WriteResponse implements Adapter for the non-streaming case: the full
// upstream document is reshaped into one Ollama chat object.
func (a *OllamaAdapter) WriteResponse(w http.ResponseWriter, resp *http.Response, requestedModel string) {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil || !gjson.ValidBytes(body) {
		log.Error().Err(err).Msg("upstream response unreadable")
		a.writeErrorDoc(w, http.StatusInternalServerError, requestedModel, "failed to decode API response")
		return
	}

	content := gjson.GetBytes(body, "choices.0.message.content").String()
	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		model = requestedModel
	}

	out := newOllamaChunk(model, content, true)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, out)
}

// StreamResponse implements Adapter: upstream deltas become NDJSON lines,
// closed by a done:true object carrying the elapsed generation time.
func (a *OllamaAdapter) StreamResponse(w http.ResponseWriter, resp *http.Response, requestedModel string) {
	defer func() { _ = resp.Body.Close() }()

	start := time.Now()
	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)

	var filter ThoughtFilter
	emit := func(chunk ollamaChunk) {
		writeJSON(w, chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}

	sc := newStreamScanner(resp.Body)
	for sc.Scan() {
		delta, ok := ParseStreamLine(sc.Text())
		if !ok {
			continue
		}
		if delta.Done {
			break
		}

		if visible := filter.Filter(delta.Content); visible != "" {
			emit(newOllamaChunk(requestedModel, visible, false))
		}

		if delta.FinishReason != "" {
			break
		}
	}

	if err := sc.Err(); err != nil {
		// The caller already holds partial output; explain before closing.
		log.Error().Err(err).Msg("stream read failed")
		errChunk := newOllamaChunk(requestedModel, "", true)
		errChunk.Error = err.Error()
		emit(errChunk)
		return
	}

	if tail := filter.Flush(); tail != "" {
		emit(newOllamaChunk(requestedModel, tail, false))
	}
	final := newOllamaChunk(requestedModel, "", true)
	elapsed := time.Since(start).Nanoseconds()
	final.TotalDuration = elapsed
	final.EvalDuration = elapsed
	emit(final)
}

// WriteError implements Adapter.
func (a *OllamaAdapter) WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeErrorDoc emits a chat-shaped error object so clients mid-exchange
// still receive a well-formed chunk.
func (a *OllamaAdapter) writeErrorDoc(w http.ResponseWriter, status int, model, message string) {
	out := newOllamaChunk(model, "Error: "+message, true)
	out.Error = message
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, out)
}

// writeJSON writes one NDJSON-terminated object without HTML escaping.
func writeJSON(w io.Writer, v any) {
	data, err := utils.MarshalNoEscape(v)
	if err != nil {
		log.Error().Err(err).Msg("chunk marshal failed")
		return
	}
	_, _ = w.Write(append(data, '\n'))
}

var _ Adapter = (*OllamaAdapter)(nil)
