// Package extraction implements memory extraction: building
// type-specific prompts and schemas, invoking a completion.Provider in
// structured mode, and transforming the raw structured output into typed
// memories and relationships.
package extraction

import (
	"time"

	"memlayer/internal/completion"
)

// Built-in memory types. entity/fact/decision always have default prompts
// and metadata schemas; anything else must be registered via
// Registry.RegisterMemoryType.
const (
	TypeEntity   = "entity"
	TypeFact     = "fact"
	TypeDecision = "decision"
)

// TypeConfig describes a (built-in or custom) memory type: the
// type-specific extraction instructions appended to the prompt, and the
// metadata sub-schema merged into the structured-output schema.
type TypeConfig struct {
	Type             string
	ExtractionPrompt string
	Schema           completion.Schema
}

// Memory is a single extracted memory, post transform_result.
type Memory struct {
	ID               string
	WorkspaceID      string
	ConversationID   string
	Type             string
	Content          string
	Confidence       float64
	Metadata         map[string]any
	Embedding        []float32
	SourceMessageIDs []string
	SourceChunks     []string
	ChunkConfidence  []float64
	MergedFrom       []string
	CreatedAt        time.Time
}

// Relationship is a single extracted relationship. FromMemoryID/ToMemoryID
// hold "temp_{index}" placeholders referring to the position of the
// endpoint within the same ChunkExtractionResult.Memories slice, until the
// deduplicator resolves them to canonical memory ids.
type Relationship struct {
	FromMemoryID     string
	ToMemoryID       string
	RelationshipType string
	Confidence       float64
	CreatedAt        time.Time
}

// Status values for ChunkExtractionResult.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ChunkExtractionResult is the outcome of extracting memories from one
// chunk. A failed chunk carries Err and an empty Memories/Relationships,
// and does not fail the rest of the conversation's extraction.
type ChunkExtractionResult struct {
	ChunkID       string
	Status        string
	Memories      []Memory
	Relationships []Relationship
	Err           error
}

// PreviousChunkContext summarizes memories already extracted from an
// earlier chunk (or an earlier incremental extraction) so the next
// extraction call can avoid re-extracting them and can reference them by
// position in its own relationships.
type PreviousChunkContext struct {
	Memories []Memory
}

// IncrementalContext carries the identifiers and prior memories needed by
// ExtractIncremental to extract from a batch of newly streamed messages
// without re-chunking the whole conversation.
type IncrementalContext struct {
	ConversationID string
	WorkspaceID    string
	Types          []string
	Previous       *PreviousChunkContext
}
