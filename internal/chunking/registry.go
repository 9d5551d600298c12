package chunking

import (
	"memlayer/internal/chatimport"
	"memlayer/internal/memerrors"
	"memlayer/internal/tokencount"
)

// Registry selects a Strategy by name, falling back to sliding-window for
// any conversation the selected strategy declines via CanHandle.
type Registry struct {
	strategies map[StrategyName]Strategy
	fallback   Strategy
}

// NewRegistry returns a registry with the three built-in strategies registered.
func NewRegistry(counter *tokencount.Counter) *Registry {
	fallback := NewSlidingWindowStrategy(counter)
	r := &Registry{
		strategies: make(map[StrategyName]Strategy),
		fallback:   fallback,
	}
	r.Register(fallback)
	r.Register(NewConversationBoundaryStrategy(counter))
	r.Register(NewSemanticStrategy(counter))
	return r
}

// Register adds or replaces a strategy under its own name.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Chunk selects the strategy named in cfg.Strategy (or cfg.CustomStrategyName
// when cfg.Strategy is empty) and runs it, falling back to sliding-window if
// the selected strategy cannot handle this conversation.
func (r *Registry) Chunk(conv chatimport.NormalizedConversation, cfg Config) ([]ConversationChunk, error) {
	name := cfg.Strategy
	if name == "" && cfg.CustomStrategyName != "" {
		name = StrategyName(cfg.CustomStrategyName)
	}
	if name == "" {
		name = StrategySlidingWindow
	}

	strategy, ok := r.strategies[name]
	if !ok {
		return nil, memerrors.New(memerrors.KindValidation, "no chunking strategy registered under name "+string(name))
	}
	if !strategy.CanHandle(conv, cfg) {
		strategy = r.fallback
	}
	return strategy.Chunk(conv, cfg)
}
