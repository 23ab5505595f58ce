package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreamLine(t *testing.T) {
	t.Run("content delta", func(t *testing.T) {
		d, ok := ParseStreamLine(`data: {"choices":[{"delta":{"content":"Hi"}}]}`)
		require.True(t, ok)
		assert.Equal(t, "Hi", d.Content)
		assert.Empty(t, d.FinishReason)
		assert.False(t, d.Done)
	})

	t.Run("finish reason", func(t *testing.T) {
		d, ok := ParseStreamLine(`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`)
		require.True(t, ok)
		assert.Equal(t, "stop", d.FinishReason)
	})

	t.Run("done sentinel", func(t *testing.T) {
		d, ok := ParseStreamLine("data: [DONE]")
		require.True(t, ok)
		assert.True(t, d.Done)
	})

	t.Run("bare json without sse prefix", func(t *testing.T) {
		d, ok := ParseStreamLine(`{"choices":[{"delta":{"content":"x"}}]}`)
		require.True(t, ok)
		assert.Equal(t, "x", d.Content)
	})

	t.Run("skipped lines", func(t *testing.T) {
		for _, line := range []string{"", "   ", ": keepalive", "data: not json", `{"no_choices":true}`} {
			_, ok := ParseStreamLine(line)
			assert.False(t, ok, "line %q", line)
		}
	})
}
