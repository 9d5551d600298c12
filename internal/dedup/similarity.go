package dedup

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"memlayer/internal/extraction"
)

// normalizeContent lowercases and collapses interior whitespace so
// near-identical content compares equal regardless of casing or spacing.
func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func entityTypeOf(m extraction.Memory) string {
	v, _ := m.Metadata["entity_type"].(string)
	return v
}

func entityNameOf(m extraction.Memory) string {
	v, _ := m.Metadata["name"].(string)
	return v
}

// Similarity scores how likely a and b are the same underlying memory:
// 0 across types or workspaces, 1.0 on a normalized exact match (subject
// to entity_type/name agreement for entities), 0.7 for entities whose
// content matches but whose entity_type or name disagrees, and otherwise
// a Levenshtein-based ratio.
func Similarity(a, b extraction.Memory) float64 {
	if a.Type != b.Type || a.WorkspaceID != b.WorkspaceID {
		return 0
	}

	na, nb := normalizeContent(a.Content), normalizeContent(b.Content)
	if na == nb {
		if a.Type == extraction.TypeEntity {
			if entityTypeOf(a) == entityTypeOf(b) && normalizeContent(entityNameOf(a)) == normalizeContent(entityNameOf(b)) {
				return 1.0
			}
			return 0.7
		}
		return 1.0
	}

	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(na, nb)
	return 1 - float64(dist)/float64(maxLen)
}

// isDuplicate reports whether a and b's similarity clears duplicateThreshold.
func isDuplicate(a, b extraction.Memory) bool {
	return Similarity(a, b) >= duplicateThreshold
}
