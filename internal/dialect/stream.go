package dialect

import (
	"bufio"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/omnirelay/llm-gateway/internal/config"
	"github.com/omnirelay/llm-gateway/internal/utils"
)

// Delta is one upstream stream event after SSE framing is stripped.
type Delta struct {
	// Content is the token text carried by this event, may be empty.
	Content string

	// FinishReason is non-empty on the closing delta ("stop", ...).
	FinishReason string

	// Done marks the [DONE] sentinel; no other field is set.
	Done bool
}

// ParseStreamLine decodes one line of the upstream token stream.
// ok is false for lines that carry nothing: blanks, ":" comments and
// keepalives, and payloads that are not valid delta JSON.
func ParseStreamLine(line string) (Delta, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return Delta{}, false
	}
	line = strings.TrimPrefix(line, "data: ")
	if line == "[DONE]" {
		return Delta{Done: true}, true
	}

	if !gjson.Valid(line) {
		log.Warn().Str("payload", utils.TruncateForLog(line, 100)).Msg("invalid JSON in upstream stream")
		return Delta{}, false
	}
	choice := gjson.Get(line, "choices.0")
	if !choice.Exists() {
		return Delta{}, false
	}
	return Delta{
		Content:      choice.Get("delta.content").String(),
		FinishReason: choice.Get("finish_reason").String(),
	}, true
}

// newStreamScanner wraps an upstream body with a line scanner sized for
// deltas that exceed bufio's default limit.
func newStreamScanner(body io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), config.StreamScanBufferSize)
	return sc
}
