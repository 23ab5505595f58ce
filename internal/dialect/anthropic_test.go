package dialect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnirelay/llm-gateway/internal/chat"
)

func TestAnthropicAdapter_ParseRequestLiftsSystemField(t *testing.T) {
	a := NewAnthropicAdapter()

	req, err := a.ParseRequest([]byte(`{
		"model":"qwen:qwen3-coder-plus",
		"system":"be terse",
		"messages":[{"role":"user","content":"hi"}]
	}`))
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, chat.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "be terse", req.Messages[0].Text)
	assert.Equal(t, chat.RoleUser, req.Messages[1].Role)
	assert.False(t, req.Stream)
}

func TestAnthropicAdapter_ParseRequestFlattensBlocks(t *testing.T) {
	a := NewAnthropicAdapter()

	req, err := a.ParseRequest([]byte(`{
		"model":"m:x",
		"system":[{"type":"text","text":"one"},{"type":"text","text":"two"}],
		"messages":[{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", req.Messages[0].Text)
	assert.Equal(t, "a\nb", req.Messages[1].Text)
}

func TestAnthropicAdapter_ParseRequestRejectsBadInput(t *testing.T) {
	a := NewAnthropicAdapter()
	for name, body := range map[string]string{
		"missing model":    `{"messages":[{"role":"user","content":"hi"}]}`,
		"missing messages": `{"model":"m:x"}`,
		"invalid json":     `{`,
	} {
		_, err := a.ParseRequest([]byte(body))
		assert.Error(t, err, name)
	}
}

func TestAnthropicAdapter_WriteResponseShape(t *testing.T) {
	a := NewAnthropicAdapter()
	rec := httptest.NewRecorder()

	a.WriteResponse(rec, upstreamResponse(200, `{
		"choices":[{"message":{"role":"assistant","content":"Hello!"}}],
		"usage":{"prompt_tokens":12,"completion_tokens":3}
	}`), "qwen:qwen3-coder-plus")

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Regexp(t, regexp.MustCompile(`^msg_[0-9a-f]{24}$`), out["id"])
	assert.Equal(t, "message", out["type"])
	assert.Equal(t, "assistant", out["role"])
	assert.Equal(t, "end_turn", out["stop_reason"])
	assert.Equal(t, "qwen:qwen3-coder-plus", out["model"])

	content := out["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "text", content["type"])
	assert.Equal(t, "Hello!", content["text"])

	usage := out["usage"].(map[string]any)
	assert.Equal(t, float64(12), usage["input_tokens"])
	assert.Equal(t, float64(3), usage["output_tokens"])
}

func TestAnthropicAdapter_WriteResponseEstimatesMissingUsage(t *testing.T) {
	a := NewAnthropicAdapter()
	rec := httptest.NewRecorder()

	a.WriteResponse(rec, upstreamResponse(200, `{"choices":[{"message":{"content":"four words of text"}}]}`), "m:x")

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	usage := out["usage"].(map[string]any)
	assert.Greater(t, usage["output_tokens"].(float64), float64(0))
}

// sseEvents parses "event:"/"data:" frames into (event, payload) pairs.
func sseEvents(t *testing.T, body string) []struct {
	Event string
	Data  map[string]any
} {
	t.Helper()
	var out []struct {
		Event string
		Data  map[string]any
	}
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		lines := strings.SplitN(frame, "\n", 2)
		require.Len(t, lines, 2, "frame %q", frame)
		event := strings.TrimPrefix(lines[0], "event: ")
		var data map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &data))
		out = append(out, struct {
			Event string
			Data  map[string]any
		}{event, data})
	}
	return out
}

func TestAnthropicAdapter_StreamEventSequence(t *testing.T) {
	a := NewAnthropicAdapter()
	rec := httptest.NewRecorder()

	sse := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Hi "}}]}`,
		`data: {"choices":[{"delta":{"content":"there"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	}, "\n")

	a.StreamResponse(rec, upstreamResponse(200, sse), "qwen:qwen3-coder-plus")

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	events := sseEvents(t, rec.Body.String())
	require.NotEmpty(t, events)

	var names []string
	var text string
	for _, ev := range events {
		names = append(names, ev.Event)
		if ev.Event == "content_block_delta" {
			text += ev.Data["delta"].(map[string]any)["text"].(string)
		}
	}

	assert.Equal(t, "message_start", names[0])
	assert.Equal(t, "content_block_start", names[1])
	assert.Equal(t, "Hi there", text)

	n := len(names)
	require.GreaterOrEqual(t, n, 5)
	assert.Equal(t, "content_block_stop", names[n-3])
	assert.Equal(t, "message_delta", names[n-2])
	assert.Equal(t, "message_stop", names[n-1])
}

func TestAnthropicAdapter_WriteErrorEnvelope(t *testing.T) {
	a := NewAnthropicAdapter()
	rec := httptest.NewRecorder()

	a.WriteError(rec, http.StatusBadRequest, "model is required")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "error", out["type"])
	errObj := out["error"].(map[string]any)
	assert.Equal(t, "invalid_request_error", errObj["type"])
	assert.Equal(t, "model is required", errObj["message"])
}
