package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))

	short := EstimateTokens("hello")
	long := EstimateTokens("hello world, this is a much longer sentence with many more words in it")
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestEstimateMessageTokens(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Text: "hello there"},
		{Role: RoleAssistant, Parts: []Part{{Type: PartText, Text: "general kenobi"}}},
	}
	assert.Equal(t,
		EstimateTokens("hello there")+EstimateTokens("general kenobi"),
		EstimateMessageTokens(msgs))
}
