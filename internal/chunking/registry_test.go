package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlayer/internal/tokencount"
)

func TestRegistry_ChunkSelectsNamedStrategy(t *testing.T) {
	counter := newCounter(t)
	reg := NewRegistry(counter)

	msgs := repeatedMessages(6, 20)
	conv := testConversation(msgs)

	cfg := Config{
		MaxTokensPerChunk:         200,
		Strategy:                  StrategyConversationBoundary,
		PreserveMessageBoundaries: true,
		TokenCountMethod:          tokencount.MethodApproximate,
	}

	chunks, err := reg.Chunk(conv, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, StrategyConversationBoundary, chunks[0].Metadata.StrategyName)
}

func TestRegistry_DefaultsToSlidingWindow(t *testing.T) {
	counter := newCounter(t)
	reg := NewRegistry(counter)

	msgs := repeatedMessages(4, 20)
	conv := testConversation(msgs)

	cfg := Config{
		MaxTokensPerChunk:         200,
		PreserveMessageBoundaries: true,
		TokenCountMethod:          tokencount.MethodApproximate,
	}

	chunks, err := reg.Chunk(conv, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, StrategySlidingWindow, chunks[0].Metadata.StrategyName)
}

func TestRegistry_UnknownStrategyErrors(t *testing.T) {
	counter := newCounter(t)
	reg := NewRegistry(counter)

	msgs := repeatedMessages(2, 20)
	conv := testConversation(msgs)

	cfg := Config{MaxTokensPerChunk: 200, Strategy: "nonexistent"}

	_, err := reg.Chunk(conv, cfg)
	assert.Error(t, err)
}
