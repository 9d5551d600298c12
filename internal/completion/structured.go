package completion

import (
	"encoding/json"
	"regexp"
	"strings"

	"memlayer/internal/memerrors"
)

//nolint:gochecknoglobals // fixed parsing pattern, not configuration
var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// stripFencedCodeBlocks removes a single Markdown fenced code block wrapper
// (```json ... ``` or ``` ... ```), returning its inner content. Input with
// no fence is returned trimmed, unchanged.
func stripFencedCodeBlocks(raw string) string {
	if m := fencedBlockPattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// hasSectionHeaders reports whether s uses "## Section" markdown headers
// instead of a single JSON object.
func hasSectionHeaders(s string) bool {
	return strings.HasPrefix(s, "## ") || strings.Contains(s, "\n## ")
}

//nolint:gochecknoglobals // fixed header-name -> memory-type mapping
var sectionMemoryTypes = map[string]string{
	"entities":  "entity",
	"facts":     "fact",
	"decisions": "decision",
}

// splitSections breaks a "## Header\n<body>\n## Header2\n<body2>" document
// into an ordered list of (header, body) pairs.
func splitSections(s string) []struct{ header, body string } {
	lines := strings.Split(s, "\n")
	var sections []struct{ header, body string }
	var curHeader string
	var curBody []string

	flush := func() {
		if curHeader != "" {
			sections = append(sections, struct{ header, body string }{curHeader, strings.Join(curBody, "\n")})
		}
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "## ") {
			flush()
			curHeader = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "## "))
			curBody = nil
			continue
		}
		curBody = append(curBody, line)
	}
	flush()
	return sections
}

// cleanMarkdownJSON converts a raw LLM structured-output response into a
// single JSON document with top-level "memories" and "relationships"
// arrays. Two recovery shapes are supported and treated as independent
// branches (see the extraction-schema open question in DESIGN.md):
//   - fenced-code-block-only: the whole body, once unfenced, is already the
//     target JSON object.
//   - "## Section" headers: "Entities"/"Facts"/"Decisions" sections each
//     hold a JSON array of memory rows, tagged with the section's memory
//     type; a "Relationships" section holds a JSON array of relationship rows.
func cleanMarkdownJSON(raw string) (string, error) {
	stripped := stripFencedCodeBlocks(raw)
	if stripped == "" {
		return "", memerrors.NewParseError(nil, raw)
	}

	if !hasSectionHeaders(stripped) {
		return stripped, nil
	}

	memories := []any{}
	relationships := []any{}

	for _, section := range splitSections(stripped) {
		body := strings.TrimSpace(section.body)
		if body == "" {
			continue
		}

		key := strings.ToLower(section.header)
		if key == "relationships" {
			var rows []any
			if err := json.Unmarshal([]byte(body), &rows); err != nil {
				continue // malformed section: skip rather than fail the whole document
			}
			relationships = append(relationships, rows...)
			continue
		}

		memType, ok := sectionMemoryTypes[key]
		if !ok {
			continue
		}
		var rows []map[string]any
		if err := json.Unmarshal([]byte(body), &rows); err != nil {
			continue
		}
		for _, row := range rows {
			if _, exists := row["type"]; !exists {
				row["type"] = memType
			}
			memories = append(memories, row)
		}
	}

	out, err := json.Marshal(map[string]any{
		"memories":      memories,
		"relationships": relationships,
	})
	if err != nil {
		return "", memerrors.NewParseError(err, raw)
	}
	return string(out), nil
}
