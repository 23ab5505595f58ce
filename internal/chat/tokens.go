package chat

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	encoder *tiktoken.Tiktoken
)

// EstimateTokens counts tokens with the cl100k_base encoding. Upstreams do
// not always report usage; this keeps the usage fields and telemetry
// populated. Falls back to the ~4 chars/token heuristic when the encoding
// is unavailable.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoder = enc
		}
	})
	if encoder == nil {
		return len(text) / 4
	}
	return len(encoder.Encode(text, nil, nil))
}

// EstimateMessageTokens sums the token estimate over a message list.
func EstimateMessageTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.FlattenText())
	}
	return total
}
