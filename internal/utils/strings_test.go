package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(empty)", MaskKey(""))
	assert.Equal(t, "****", MaskKey("shortkey"))
	assert.Equal(t, "sk-abcde...wxyz", MaskKey("sk-abcdefghijklmnopqrstuvwxyz"))
}

func TestTruncateForLog(t *testing.T) {
	assert.Equal(t, "short", TruncateForLog("short", 10))
	assert.Equal(t, "abcde...", TruncateForLog("abcdefghij", 5))
	assert.Equal(t, "unbounded", TruncateForLog("unbounded", 0))
}

func TestMarshalNoEscape(t *testing.T) {
	out, err := MarshalNoEscape(map[string]string{"text": "<thought>a & b</thought>"})
	require.NoError(t, err)
	assert.Equal(t, `{"text":"<thought>a & b</thought>"}`, string(out))
}
