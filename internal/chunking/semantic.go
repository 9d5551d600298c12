package chunking

import (
	"strings"

	"memlayer/internal/chatimport"
	"memlayer/internal/memerrors"
	"memlayer/internal/tokencount"
)

const (
	semanticWindowSize = 3
	semanticThreshold  = 0.3
)

//nolint:gochecknoglobals // fixed stopword set, not mutable configuration
var semanticStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "to": true,
	"of": true, "in": true, "on": true, "for": true, "with": true, "it": true,
	"this": true, "that": true, "i": true, "you": true, "we": true, "they": true,
}

// SemanticStrategy splits a conversation at topic shifts, detected as a drop
// in keyword overlap between adjacent windows of messages. It falls back to
// sliding-window chunking when the conversation is too short to form two
// windows, or no shift is found.
type SemanticStrategy struct {
	counter *tokencount.Counter
}

// NewSemanticStrategy returns the strategy, using counter for token accounting.
func NewSemanticStrategy(counter *tokencount.Counter) *SemanticStrategy {
	return &SemanticStrategy{counter: counter}
}

// Name implements Strategy.
func (s *SemanticStrategy) Name() StrategyName { return StrategySemantic }

// CanHandle implements Strategy; semantic chunking applies to any non-empty
// conversation, falling back internally when too short to detect shifts.
func (s *SemanticStrategy) CanHandle(conv chatimport.NormalizedConversation, _ Config) bool {
	return len(conv.Messages) > 0
}

// Chunk implements Strategy.
func (s *SemanticStrategy) Chunk(conv chatimport.NormalizedConversation, cfg Config) ([]ConversationChunk, error) {
	msgs := conv.Messages
	if len(msgs) == 0 {
		return nil, memerrors.New(memerrors.KindValidation, "cannot chunk a conversation with no messages")
	}

	if len(msgs) < 2*semanticWindowSize {
		windows, tokens, err := computeSlidingWindows(s.counter, conv, cfg)
		if err != nil {
			return nil, err
		}
		return buildChunks(conv, msgs, tokens, windows, cfg, StrategySlidingWindow), nil
	}

	shiftPoints := topicShiftPoints(msgs)
	if len(shiftPoints) == 0 {
		windows, tokens, err := computeSlidingWindows(s.counter, conv, cfg)
		if err != nil {
			return nil, err
		}
		return buildChunks(conv, msgs, tokens, windows, cfg, StrategySlidingWindow), nil
	}

	tokens := messageTokens(s.counter, msgs, cfg.TokenCountMethod)
	overlapTokens := cfg.resolvedOverlap()
	minSize := cfg.resolvedMinChunkSize()

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
		for j < len(msgs) {
			if tokens[j] > cfg.MaxTokensPerChunk || running+tokens[j] > cfg.MaxTokensPerChunk {
				break
			}
			running += tokens[j]
			j++
		}
		if j == start {
			j = start + 1
		}

		end := j
		best := -1
		for _, sp := range shiftPoints {
			if sp <= start {
				continue
			}
			if sp > j {
				break
			}
			if sumRange(tokens, start, sp) >= minSize {
				best = sp
			}
		}
		if best > start {
			end = best
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

	return buildChunks(conv, msgs, tokens, windows, cfg, StrategySemantic), nil
}

// topicShiftPoints returns ascending message indices where the keyword
// overlap between the preceding and following semanticWindowSize-message
// windows drops below semanticThreshold.
func topicShiftPoints(msgs []chatimport.NormalizedMessage) []int {
	var points []int
	for idx := semanticWindowSize; idx <= len(msgs)-semanticWindowSize; idx++ {
		before := keywordSet(msgs[idx-semanticWindowSize : idx])
		after := keywordSet(msgs[idx : idx+semanticWindowSize])
		if keywordOverlap(before, after) < semanticThreshold {
			points = append(points, idx)
		}
	}
	return points
}

func keywordSet(msgs []chatimport.NormalizedMessage) map[string]bool {
	set := make(map[string]bool)
	for _, m := range msgs {
		for _, word := range strings.Fields(strings.ToLower(m.Content)) {
			word = strings.Trim(word, ".,!?;:\"'()[]{}")
			if len(word) < 3 || semanticStopwords[word] {
				continue
			}
			set[word] = true
		}
	}
	return set
}

// keywordOverlap computes a Jaccard-style overlap ratio between two keyword
// sets; two empty windows are treated as fully overlapping (no shift).
func keywordOverlap(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for word := range a {
		if b[word] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}
