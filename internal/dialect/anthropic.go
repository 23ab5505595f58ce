package dialect

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/omnirelay/llm-gateway/internal/chat"
	"github.com/omnirelay/llm-gateway/internal/utils"
)

// AnthropicAdapter speaks the Anthropic messages wire format: a separate
// top-level "system" field, block-structured content, and named SSE events
// when streaming.
type AnthropicAdapter struct{}

// NewAnthropicAdapter creates the Anthropic dialect adapter.
func NewAnthropicAdapter() *AnthropicAdapter { return &AnthropicAdapter{} }

// Name implements Adapter.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// anthropicContent accepts either a plain string or an array of content
// blocks, flattening blocks to their newline-joined text.
type anthropicContent struct {
	Text string
}

func (c *anthropicContent) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		c.Text = ""
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	c.Text = ""
	for _, b := range blocks {
		if b.Type != "text" || b.Text == "" {
			continue
		}
		if c.Text != "" {
			c.Text += "\n"
		}
		c.Text += b.Text
	}
	return nil
}

// ParseRequest implements Adapter. The system field is lifted into a
// leading system message; content blocks are flattened to plain text
// before normalization. Streaming defaults to off.
func (a *AnthropicAdapter) ParseRequest(body []byte) (*chat.Request, error) {
	var req struct {
		Model    string           `json:"model"`
		System   anthropicContent `json:"system"`
		Messages []struct {
			Role    chat.Role        `json:"role"`
			Content anthropicContent `json:"content"`
		} `json:"messages"`
		Stream *bool `json:"stream"`
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

	messages := make([]chat.Message, 0, len(req.Messages)+1)
	if req.System.Text != "" {
		messages = append(messages, chat.Message{Role: chat.RoleSystem, Text: req.System.Text})
	}
	for _, m := range req.Messages {
		messages = append(messages, chat.Message{Role: m.Role, Text: m.Content.Text})
	}

	stream := false
	if req.Stream != nil {
		stream = *req.Stream
	}
	return &chat.Request{Model: req.Model, Messages: messages, Stream: stream}, nil
}

// newMessageID generates an Anthropic-shaped message identifier
// ("msg_" plus 24 hex chars).
func newMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// WriteResponse implements Adapter: the upstream document is reshaped into
// an Anthropic message. Token usage is taken from the upstream when
// reported, estimated otherwise.
func (a *AnthropicAdapter) WriteResponse(w http.ResponseWriter, resp *http.Response, requestedModel string) {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil || !gjson.ValidBytes(body) {
		log.Error().Err(err).Msg("upstream response unreadable")
		a.WriteError(w, http.StatusInternalServerError, "failed to decode API response")
		return
	}

	content := gjson.GetBytes(body, "choices.0.message.content").String()
	inputTokens := int(gjson.GetBytes(body, "usage.prompt_tokens").Int())
	outputTokens := int(gjson.GetBytes(body, "usage.completion_tokens").Int())
	if outputTokens == 0 && content != "" {
		outputTokens = chat.EstimateTokens(content)
	}

	doc := map[string]any{
		"id":            newMessageID(),
		"type":          "message",
		"role":          "assistant",
		"content":       []map[string]string{{"type": "text", "text": content}},
		"model":         requestedModel,
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage": map[string]int{
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		},
	}

	out, err := utils.MarshalNoEscape(doc)
	if err != nil {
		a.WriteError(w, http.StatusInternalServerError, "response conversion failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

// writeEvent emits one named SSE event.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := utils.MarshalNoEscape(payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("event marshal failed")
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	if flusher != nil {
		flusher.Flush()
	}
}

// StreamResponse implements Adapter: the fixed opening sequence, one
// content_block_delta per visible delta, and the closing sequence on the
// first finish_reason.
func (a *AnthropicAdapter) StreamResponse(w http.ResponseWriter, resp *http.Response, requestedModel string) {
	defer func() { _ = resp.Body.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	writeEvent(w, flusher, "message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":            newMessageID(),
			"type":          "message",
			"role":          "assistant",
			"content":       []any{},
			"model":         requestedModel,
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         map[string]int{"input_tokens": 0, "output_tokens": 0},
		},
	})
	writeEvent(w, flusher, "content_block_start", map[string]any{
		"type":          "content_block_start",
		"index":         0,
		"content_block": map[string]string{"type": "text", "text": ""},
	})

	var filter ThoughtFilter
	var emitted string
	emitDelta := func(text string) {
		emitted += text
		writeEvent(w, flusher, "content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]string{"type": "text_delta", "text": text},
		})
	}

	streamErr := ""
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
			emitDelta(visible)
		}
		if delta.FinishReason != "" {
			break
		}
	}
	if err := sc.Err(); err != nil {
		log.Error().Err(err).Msg("stream read failed")
		streamErr = err.Error()
	}
	if tail := filter.Flush(); tail != "" {
		emitDelta(tail)
	}

	if streamErr != "" {
		writeEvent(w, flusher, "error", map[string]any{
			"type":  "error",
			"error": map[string]string{"type": "api_error", "message": streamErr},
		})
	}

	writeEvent(w, flusher, "content_block_stop", map[string]any{
		"type":  "content_block_stop",
		"index": 0,
	})
	writeEvent(w, flusher, "message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
		"usage": map[string]int{"output_tokens": chat.EstimateTokens(emitted)},
	})
	writeEvent(w, flusher, "message_stop", map[string]any{"type": "message_stop"})
}

// WriteError implements Adapter with the Anthropic error envelope.
func (a *AnthropicAdapter) WriteError(w http.ResponseWriter, status int, message string) {
	errType := "api_error"
	if status >= 400 && status < 500 {
		errType = "invalid_request_error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":  "error",
		"error": map[string]string{"type": errType, "message": message},
	})
}

var _ Adapter = (*AnthropicAdapter)(nil)
