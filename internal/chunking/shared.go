package chunking

import (
	"time"

	"github.com/google/uuid"

	"memlayer/internal/chatimport"
	"memlayer/internal/tokencount"
)

// window is a half-open [start, end) range of message indices into a
// conversation's message slice.
type window struct {
	start, end int
}

// messageTokens counts each message's tokens under the configured method.
func messageTokens(counter *tokencount.Counter, msgs []chatimport.NormalizedMessage, method tokencount.Method) []int {
	tokens := make([]int, len(msgs))
	for i, m := range msgs {
		tokens[i] = counter.CountMessage(tokencount.Message{Role: string(m.Role), Content: m.Content}, method).Tokens
	}
	return tokens
}

// buildChunks converts index windows into ConversationChunks, computing
// token counts and overlap metadata between adjacent chunks from the actual
// message-id intersection of consecutive windows.
func buildChunks(
	conv chatimport.NormalizedConversation,
	msgs []chatimport.NormalizedMessage,
	tokens []int,
	windows []window,
	cfg Config,
	strategyName StrategyName,
) []ConversationChunk {
	now := time.Now().UTC()
	chunks := make([]ConversationChunk, 0, len(windows))

	for idx, w := range windows {
		chunkMsgs := msgs[w.start:w.end]
		tokenCount := sumRange(tokens, w.start, w.end)

		chunks = append(chunks, ConversationChunk{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Sequence:       idx + 1,
			Messages:       append([]chatimport.NormalizedMessage(nil), chunkMsgs...),
			TokenCount:     tokenCount,
			Metadata: ChunkMetadata{
				StartIndex:    w.start,
				EndIndex:      w.end - 1,
				StrategyName:  strategyName,
				CreatedAt:     now,
				OversizeAlone: w.end-w.start == 1 && tokenCount > cfg.MaxTokensPerChunk,
			},
		})
	}

	total := len(chunks)
	for i := range chunks {
		chunks[i].TotalChunks = total
	}

	for i := 0; i < len(chunks)-1; i++ {
		cur, next := windows[i], windows[i+1]
		overlapStart := next.start
		overlapEnd := cur.end
		if overlapStart >= overlapEnd {
			continue // no shared messages between these two windows
		}
		overlapTokens := sumRange(tokens, overlapStart, overlapEnd)
		info := OverlapInfo{MessageCount: overlapEnd - overlapStart, Tokens: overlapTokens}
		chunks[i].OverlapWithNext = info
		chunks[i+1].OverlapWithPrev = info
	}

	return chunks
}

func sumRange(tokens []int, start, end int) int {
	sum := 0
	for i := start; i < end; i++ {
		sum += tokens[i]
	}
	return sum
}
