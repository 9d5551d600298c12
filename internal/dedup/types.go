// Package dedup implements chunk deduplication: clustering near-duplicate
// memories extracted across chunks into canonical memories, and rewriting
// relationship endpoints to match.
package dedup

import "memlayer/internal/extraction"

// duplicateThreshold is the minimum similarity score at which two
// memories are merged into the same cluster.
const duplicateThreshold = 0.85

// DeduplicationResult is the outcome of Deduplicate.
type DeduplicationResult struct {
	UniqueMemories  []extraction.Memory
	DuplicatesFound int
	// MergedMemories is the subset of UniqueMemories that absorbed at
	// least one duplicate (i.e. have a non-empty MergedFrom).
	MergedMemories []extraction.Memory
}

// memberRef tracks a memory's position in the overall scan order, so
// clustering and base-selection can break ties toward the
// earlier-scanned member.
type memberRef struct {
	index  int
	memory extraction.Memory
}

type groupKey struct {
	memType     string
	workspaceID string
}
