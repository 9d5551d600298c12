// Package retrieval turns a query into a scored, budgeted context string
// for the command processor: search first, fall back through a cascade
// of broader searches on an empty result, then assemble and truncate to
// the token budget.
package retrieval

import (
	"memlayer/internal/storage"
	"memlayer/internal/tokencount"
)

// defaultK is the candidate pool size pulled from vector search before
// filtering, boosting, and the fallback cascade narrow it down.
const defaultK = 20

// defaultTokenBudget is the default context-composition budget, in
// approximately-counted tokens.
const defaultTokenBudget = 1000

// factBoostFactor is applied to memories of type "fact" after the
// conversational filter, ahead of the fallback cascade.
const factBoostFactor = 1.5

// Config tunes a Builder's pipeline.
type Config struct {
	K           int // candidate pool size; defaults to defaultK when <= 0
	TokenBudget int // context composition budget; defaults to defaultTokenBudget when <= 0
	FactBoost   float64
	TokenMethod tokencount.Method
}

// Context is the result of build_context.
type Context struct {
	Text      string
	Memories  []storage.ScoredMemory
	Fallbacks []string // names of fallback stages that fired, in order; empty on the happy path
}
