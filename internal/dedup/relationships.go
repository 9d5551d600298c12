package dedup

import (
	"strconv"
	"strings"

	"memlayer/internal/extraction"
)

// tempIndex parses a "temp_{index}" placeholder id back to its index,
// reporting false if id isn't one.
func tempIndex(id string) (int, bool) {
	rest := strings.TrimPrefix(id, "temp_")
	if rest == id {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// resolveTempID resolves a "temp_{index}" placeholder against the memories
// slice it was generated from, returning the memory's real id.
func resolveTempID(id string, memories []extraction.Memory) (string, bool) {
	idx, ok := tempIndex(id)
	if !ok || idx < 0 || idx >= len(memories) {
		return "", false
	}
	return memories[idx].ID, true
}

// ResolvedRelationships resolves every non-failed chunk's "temp_{index}"
// relationship endpoints against that same chunk's own Memories slice — a
// temp id is only meaningful within the ChunkExtractionResult it came
// from, since transform_result never reorders or drops memories. Endpoints
// that fail to resolve (should not happen for a well-formed result) are
// dropped.
func ResolvedRelationships(chunkResults []extraction.ChunkExtractionResult) []extraction.Relationship {
	var resolved []extraction.Relationship
	for _, cr := range chunkResults {
		if cr.Status == extraction.StatusFailed {
			continue
		}
		for _, rel := range cr.Relationships {
			from, ok := resolveTempID(rel.FromMemoryID, cr.Memories)
			if !ok {
				continue
			}
			to, ok := resolveTempID(rel.ToMemoryID, cr.Memories)
			if !ok {
				continue
			}
			resolved = append(resolved, extraction.Relationship{
				FromMemoryID:     from,
				ToMemoryID:       to,
				RelationshipType: rel.RelationshipType,
				Confidence:       rel.Confidence,
				CreatedAt:        rel.CreatedAt,
			})
		}
	}
	return resolved
}

type relationshipKey struct {
	from, to, relType string
}

// MergeRelationships rewrites each relationship's endpoints to the
// canonical memory id that absorbed it (via MergedFrom), drops any
// relationship referencing a memory id that didn't survive
// deduplication, and collapses duplicate (from, to, relationship_type)
// triples to the highest-confidence occurrence. Output preserves the
// first-seen order of the surviving composite keys.
func MergeRelationships(uniqueMemories []extraction.Memory, resolved []extraction.Relationship) []extraction.Relationship {
	canonicalOf := make(map[string]string)
	for _, m := range uniqueMemories {
		canonicalOf[m.ID] = m.ID
		for _, merged := range m.MergedFrom {
			canonicalOf[merged] = m.ID
		}
	}

	best := make(map[relationshipKey]extraction.Relationship)
	var order []relationshipKey

	for _, rel := range resolved {
		from, ok := canonicalOf[rel.FromMemoryID]
		if !ok {
			continue
		}
		to, ok := canonicalOf[rel.ToMemoryID]
		if !ok {
			continue
		}
		rewritten := rel
		rewritten.FromMemoryID = from
		rewritten.ToMemoryID = to

		key := relationshipKey{from: from, to: to, relType: rel.RelationshipType}
		existing, seen := best[key]
		if !seen {
			order = append(order, key)
			best[key] = rewritten
			continue
		}
		if rewritten.Confidence > existing.Confidence {
			best[key] = rewritten
		}
	}

	out := make([]extraction.Relationship, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}
