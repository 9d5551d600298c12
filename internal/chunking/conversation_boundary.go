package chunking

import (
	"memlayer/internal/chatimport"
	"memlayer/internal/memerrors"
	"memlayer/internal/tokencount"
)

// ConversationBoundaryStrategy prefers to end each chunk at a speaker-turn
// change (the message after a role change from the previous message),
// deferring to the sliding-window budget when no such boundary falls within
// the window.
type ConversationBoundaryStrategy struct {
	counter *tokencount.Counter
}

// NewConversationBoundaryStrategy returns the strategy, using counter for
// token accounting.
func NewConversationBoundaryStrategy(counter *tokencount.Counter) *ConversationBoundaryStrategy {
	return &ConversationBoundaryStrategy{counter: counter}
}

// Name implements Strategy.
func (s *ConversationBoundaryStrategy) Name() StrategyName { return StrategyConversationBoundary }

// CanHandle implements Strategy; applies to any non-empty conversation.
func (s *ConversationBoundaryStrategy) CanHandle(conv chatimport.NormalizedConversation, _ Config) bool {
	return len(conv.Messages) > 0
}

// Chunk implements Strategy.
func (s *ConversationBoundaryStrategy) Chunk(conv chatimport.NormalizedConversation, cfg Config) ([]ConversationChunk, error) {
	msgs := conv.Messages
	if len(msgs) == 0 {
		return nil, memerrors.New(memerrors.KindValidation, "cannot chunk a conversation with no messages")
	}

	tokens := messageTokens(s.counter, msgs, cfg.TokenCountMethod)
	overlapTokens := cfg.resolvedOverlap()

	var windows []window
	i := 0
	for i < len(msgs) {
		if tokens[i] > cfg.MaxTokensPerChunk {
			windows = append(windows, window{i, i + 1})
			i++
			continue
		}

		start := i
		running := 0
		j := i
		lastBoundary := -1
		for j < len(msgs) {
			if tokens[j] > cfg.MaxTokensPerChunk || running+tokens[j] > cfg.MaxTokensPerChunk {
				break
			}
			if j > start && msgs[j].Role != msgs[j-1].Role {
				lastBoundary = j
			}
			running += tokens[j]
			j++
		}
		if j == start {
			j = start + 1
		}

		end := j
		// Prefer ending at the last speaker-turn change seen in this window,
		// as long as it still leaves content and isn't the window's own start.
		if lastBoundary > start && lastBoundary < j {
			end = lastBoundary
		}
		windows = append(windows, window{start, end})

		if end >= len(msgs) {
			break
		}

		overlapStart := end
		overlapSum := 0
		for overlapStart > start && overlapSum < overlapTokens {
			overlapStart--
			overlapSum += tokens[overlapStart]
		}
		if overlapStart <= start {
			i = end
		} else {
			i = overlapStart
		}
	}

	return buildChunks(conv, msgs, tokens, windows, cfg, StrategyConversationBoundary), nil
}
