package extraction

import (
	"fmt"
	"strings"

	"memlayer/internal/chatimport"
	"memlayer/internal/completion"
)

// transcript concatenates messages as "{ROLE}: {content}" separated by
// blank lines.
func transcript(messages []chatimport.NormalizedMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s: %s\n\n", strings.ToUpper(string(m.Role)), m.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// previousContextSummary formats already-extracted memories from a prior
// chunk, instructing the model to avoid duplicating them and to reference
// them by position when building relationships.
func previousContextSummary(previous *PreviousChunkContext) string {
	if previous == nil || len(previous.Memories) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("PREVIOUSLY EXTRACTED MEMORIES (do not re-extract these; you may reference them by position in relationships):\n")
	for i, m := range previous.Memories {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i, m.Type, m.Content)
	}
	return sb.String()
}

// buildPrompt assembles the full extraction prompt: previous-chunk context
// (if any), the conversation transcript, and per-type extraction
// instructions resolved from registry.
func buildPrompt(messages []chatimport.NormalizedMessage, registry *Registry, types []string, previous *PreviousChunkContext) string {
	var sb strings.Builder

	if summary := previousContextSummary(previous); summary != "" {
		sb.WriteString(summary)
		sb.WriteString("\n")
	}

	sb.WriteString("CONVERSATION:\n")
	sb.WriteString(transcript(messages))
	sb.WriteString("\n\n")

	sb.WriteString("Extract memories of the following types:\n")
	for _, t := range types {
		prompt, _, ok := registry.resolve(t)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", t, prompt)
	}

	sb.WriteString("\nReturn a single JSON object with \"memories\" and \"relationships\" arrays. " +
		"Each memory has type, content, confidence (0-1), and metadata. " +
		"Each relationship references memories by their position in the memories array " +
		"(from_memory_index, to_memory_index), a relationship_type, and a confidence. " +
		"If nothing memorable is present, return empty arrays.")

	return sb.String()
}

// buildSchema assembles the top-level structured-output schema: memory
// metadata sub-schemas for each configured type are merged into a single
// "metadata" object schema.
func buildSchema(registry *Registry, types []string) completion.Schema {
	typeEnum := make([]string, 0, len(types))
	metadataProps := map[string]completion.Property{}
	for _, t := range types {
		_, schema, ok := registry.resolve(t)
		if !ok {
			continue
		}
		typeEnum = append(typeEnum, strings.ToLower(strings.TrimSpace(t)))
		for name, prop := range schema.Properties {
			metadataProps[name] = prop
		}
	}

	memoryItem := completion.Property{
		Type: "object",
		Properties: map[string]completion.Property{
			"type":       {Type: "string", Enum: typeEnum},
			"content":    {Type: "string"},
			"confidence": {Type: "number"},
			"metadata":   {Type: "object", Properties: metadataProps},
		},
		Required: []string{"type", "content", "confidence"},
	}

	relationshipItem := completion.Property{
		Type: "object",
		Properties: map[string]completion.Property{
			"from_memory_index": {Type: "integer"},
			"to_memory_index":   {Type: "integer"},
			"relationship_type": {Type: "string"},
			"confidence":        {Type: "number"},
		},
		Required: []string{"from_memory_index", "to_memory_index", "relationship_type", "confidence"},
	}

	return completion.Schema{
		Type: "object",
		Properties: map[string]completion.Property{
			"memories":      {Type: "array", Items: &memoryItem},
			"relationships": {Type: "array", Items: &relationshipItem},
		},
		Required: []string{"memories", "relationships"},
	}
}
