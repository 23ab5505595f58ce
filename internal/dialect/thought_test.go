package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThoughtFilter_StripsInlineSpan(t *testing.T) {
	var f ThoughtFilter
	out := f.Filter("before<thought>hidden</thought>after")
	assert.Equal(t, "beforeafter", out+f.Flush())
}

func TestThoughtFilter_MarkerSplitAcrossChunks(t *testing.T) {
	var f ThoughtFilter
	got := f.Filter("<thou")
	got += f.Filter("ght>secret</thought>visible")
	got += f.Flush()
	assert.Equal(t, "visible", got)
}

func TestThoughtFilter_CloseMarkerSplitAcrossChunks(t *testing.T) {
	var f ThoughtFilter
	got := f.Filter("<thought>secret</thou")
	got += f.Filter("ght>shown")
	got += f.Flush()
	assert.Equal(t, "shown", got)
}

func TestThoughtFilter_SpanAcrossManyChunks(t *testing.T) {
	var f ThoughtFilter
	got := ""
	for _, chunk := range []string{"a<thought>", "inner ", "reasoning", "</thought>", "b"} {
		got += f.Filter(chunk)
	}
	got += f.Flush()
	assert.Equal(t, "ab", got)
}

func TestThoughtFilter_PartialMarkerThatNeverCompletes(t *testing.T) {
	var f ThoughtFilter
	got := f.Filter("price is <thou")
	got += f.Flush()
	assert.Equal(t, "price is <thou", got)
}

func TestThoughtFilter_AngleBracketPlainText(t *testing.T) {
	var f ThoughtFilter
	got := f.Filter("a < b and <tag> stays")
	got += f.Flush()
	assert.Equal(t, "a < b and <tag> stays", got)
}

func TestThoughtFilter_UnterminatedSpanSuppressed(t *testing.T) {
	var f ThoughtFilter
	got := f.Filter("visible<thought>never closed")
	got += f.Flush()
	assert.Equal(t, "visible", got)
}
