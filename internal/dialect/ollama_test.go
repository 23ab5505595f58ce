package dialect

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upstreamResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func decodeNDJSON(t *testing.T, body string) []map[string]any {
	t.Helper()
	var chunks []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		var chunk map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &chunk), "line %q", line)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestOllamaAdapter_ParseRequestDefaultsToStreaming(t *testing.T) {
	a := NewOllamaAdapter()

	req, err := a.ParseRequest([]byte(`{"model":"google:gemini-2.5-flash","messages":[{"role":"user","content":"hi"}]}`))
	require.NoError(t, err)
	assert.True(t, req.Stream)
	assert.Equal(t, "google:gemini-2.5-flash", req.Model)

	req, err = a.ParseRequest([]byte(`{"model":"m:x","messages":[{"role":"user","content":"hi"}],"stream":false}`))
	require.NoError(t, err)
	assert.False(t, req.Stream)
}

func TestOllamaAdapter_ParseRequestRejectsBadInput(t *testing.T) {
	a := NewOllamaAdapter()

	for name, body := range map[string]string{
		"invalid json":     `{not json`,
		"missing model":    `{"messages":[{"role":"user","content":"hi"}]}`,
		"missing messages": `{"model":"m:x"}`,
	} {
		_, err := a.ParseRequest([]byte(body))
		require.Error(t, err, name)
		var ce *ClientError
		assert.ErrorAs(t, err, &ce, name)
	}
}

func TestOllamaAdapter_WriteResponse(t *testing.T) {
	a := NewOllamaAdapter()
	rec := httptest.NewRecorder()

	a.WriteResponse(rec, upstreamResponse(200, `{"model":"gemini-2.5-flash","choices":[{"message":{"role":"assistant","content":"Hello!"}}]}`), "google:gemini-2.5-flash")

	assert.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, true, out["done"])
	msg := out["message"].(map[string]any)
	assert.Equal(t, "assistant", msg["role"])
	assert.Equal(t, "Hello!", msg["content"])
}

func TestOllamaAdapter_StreamTranscodesDeltas(t *testing.T) {
	a := NewOllamaAdapter()
	rec := httptest.NewRecorder()

	sse := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Hi "}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"there"}}]}`,
		``,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	a.StreamResponse(rec, upstreamResponse(200, sse), "google:gemini-2.5-flash")

	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	chunks := decodeNDJSON(t, rec.Body.String())
	require.NotEmpty(t, chunks)

	var content string
	for _, chunk := range chunks[:len(chunks)-1] {
		assert.Equal(t, false, chunk["done"])
		content += chunk["message"].(map[string]any)["content"].(string)
	}
	assert.Equal(t, "Hi there", content)

	final := chunks[len(chunks)-1]
	assert.Equal(t, true, final["done"])
	assert.GreaterOrEqual(t, final["total_duration"].(float64), float64(0))
}

func TestOllamaAdapter_StreamFiltersThoughtSpans(t *testing.T) {
	a := NewOllamaAdapter()
	rec := httptest.NewRecorder()

	sse := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"<thou"}}]}`,
		`data: {"choices":[{"delta":{"content":"ght>internal</thought>visible"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	}, "\n")

	a.StreamResponse(rec, upstreamResponse(200, sse), "m:x")

	chunks := decodeNDJSON(t, rec.Body.String())
	var content string
	for _, chunk := range chunks {
		if chunk["done"] == false {
			content += chunk["message"].(map[string]any)["content"].(string)
		}
	}
	assert.Equal(t, "visible", content)
}

func TestOllamaAdapter_WriteError(t *testing.T) {
	a := NewOllamaAdapter()
	rec := httptest.NewRecorder()

	a.WriteError(rec, http.StatusBadRequest, "model is required")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "model is required", out["error"])
}
