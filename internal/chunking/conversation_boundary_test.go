package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlayer/internal/tokencount"
)

func TestConversationBoundary_PrefersSpeakerTurnEnd(t *testing.T) {
	counter := newCounter(t)
	msgs := repeatedMessages(10, 15)
	conv := testConversation(msgs)

	cfg := Config{
		MaxTokensPerChunk:         80,
		OverlapTokens:             5,
		PreserveMessageBoundaries: true,
		TokenCountMethod:          tokencount.MethodApproximate,
	}

	strategy := NewConversationBoundaryStrategy(counter)
	chunks, err := strategy.Chunk(conv, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	seen := map[string]bool{}
	for _, c := range chunks {
		for _, m := range c.Messages {
			seen[m.ID] = true
		}
	}
	assert.Len(t, seen, len(msgs))

	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, cfg.MaxTokensPerChunk)
	}
}

func TestConversationBoundary_OverlapSymmetry(t *testing.T) {
	counter := newCounter(t)
	msgs := repeatedMessages(14, 15)
	conv := testConversation(msgs)

	cfg := Config{
		MaxTokensPerChunk:         80,
		OverlapTokens:             10,
		PreserveMessageBoundaries: true,
		TokenCountMethod:          tokencount.MethodApproximate,
	}

	strategy := NewConversationBoundaryStrategy(counter)
	chunks, err := strategy.Chunk(conv, cfg)
	require.NoError(t, err)

	for i := 0; i < len(chunks)-1; i++ {
		assert.Equal(t, chunks[i].OverlapWithNext, chunks[i+1].OverlapWithPrev)
	}
}
