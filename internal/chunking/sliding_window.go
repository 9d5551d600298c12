package chunking

import (
	"memlayer/internal/chatimport"
	"memlayer/internal/memerrors"
	"memlayer/internal/tokencount"
)

// SlidingWindowStrategy greedily accumulates messages under a token budget,
// starting each subsequent chunk with an overlap region carried from the
// tail of the previous one.
type SlidingWindowStrategy struct {
	counter *tokencount.Counter
}

// NewSlidingWindowStrategy returns the default strategy, using counter for
// token accounting.
func NewSlidingWindowStrategy(counter *tokencount.Counter) *SlidingWindowStrategy {
	return &SlidingWindowStrategy{counter: counter}
}

// Name implements Strategy.
func (s *SlidingWindowStrategy) Name() StrategyName { return StrategySlidingWindow }

// CanHandle implements Strategy; sliding-window handles any non-empty conversation.
func (s *SlidingWindowStrategy) CanHandle(conv chatimport.NormalizedConversation, _ Config) bool {
	return len(conv.Messages) > 0
}

// Chunk implements Strategy.
func (s *SlidingWindowStrategy) Chunk(conv chatimport.NormalizedConversation, cfg Config) ([]ConversationChunk, error) {
	windows, tokens, err := computeSlidingWindows(s.counter, conv, cfg)
	if err != nil {
		return nil, err
	}
	return buildChunks(conv, conv.Messages, tokens, windows, cfg, StrategySlidingWindow), nil
}

// computeSlidingWindows computes the greedy, budget-respecting,
// overlap-carrying index windows shared by the sliding-window strategy and
// strategies that fall back to it.
func computeSlidingWindows(counter *tokencount.Counter, conv chatimport.NormalizedConversation, cfg Config) ([]window, []int, error) {
	msgs := conv.Messages
	if len(msgs) == 0 {
		return nil, nil, memerrors.New(memerrors.KindValidation, "cannot chunk a conversation with no messages")
	}

	tokens := messageTokens(counter, msgs, cfg.TokenCountMethod)
	overlapTokens := cfg.resolvedOverlap()

	var windows []window
	i := 0
	for i < len(msgs) {
		// A single oversize message is emitted alone, per preserve_message_boundaries.
		if tokens[i] > cfg.MaxTokensPerChunk {
			windows = append(windows, window{i, i + 1})
			i++
			continue
		}

		start := i
		running := 0
		j := i
		for j < len(msgs) {
			if tokens[j] > cfg.MaxTokensPerChunk || running+tokens[j] > cfg.MaxTokensPerChunk {
				break
			}
			running += tokens[j]
			j++
		}
		if j == start {
			j = start + 1 // defensive: always advance
		}
		windows = append(windows, window{start, j})

		if j >= len(msgs) {
			break
		}

		// Carry an overlap region from the tail of this window into the next.
		overlapStart := j
		overlapSum := 0
		for overlapStart > start && overlapSum < overlapTokens {
			overlapStart--
			overlapSum += tokens[overlapStart]
		}
		if overlapStart <= start {
			i = j
		} else {
			i = overlapStart
		}
	}

	return windows, tokens, nil
}
