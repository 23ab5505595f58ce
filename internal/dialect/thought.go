package dialect

import "strings"

// Thought span markers emitted by providers running with an explicit
// thinking mode. Everything between them is internal reasoning and must not
// reach the caller.
const (
	thoughtOpen  = "<thought>"
	thoughtClose = "</thought>"
)

// ThoughtFilter strips thought spans from streamed content. Markers can
// straddle delta boundaries, so the filter is a two-state machine (outside /
// inside span) that holds back a trailing partial marker until the next
// chunk decides it. One filter belongs to exactly one stream; it is never
// shared across requests.
type ThoughtFilter struct {
	inside bool
	carry  string
}

// Filter returns the visible portion of chunk, suppressing text inside a
// thought span.
func (f *ThoughtFilter) Filter(chunk string) string {
	text := f.carry + chunk
	f.carry = ""

	var out strings.Builder
	i := 0
	for i < len(text) {
		marker := thoughtOpen
		if f.inside {
			marker = thoughtClose
		}
		if text[i] == '<' {
			rest := text[i:]
			if strings.HasPrefix(rest, marker) {
				f.inside = !f.inside
				i += len(marker)
				continue
			}
			if len(rest) < len(marker) && strings.HasPrefix(marker, rest) {
				// Could be a marker split across chunks; decide next time.
				f.carry = rest
				break
			}
		}
		if !f.inside {
			out.WriteByte(text[i])
		}
		i++
	}
	return out.String()
}

// Flush returns any held-back text once the stream ends. A partial marker
// that never completed was ordinary content after all.
func (f *ThoughtFilter) Flush() string {
	carry := f.carry
	f.carry = ""
	if f.inside {
		return ""
	}
	return carry
}
