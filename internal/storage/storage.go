// Package storage defines the persistence interface the
// rest of the pipeline depends on for memories, relationships, and the
// commands that produced them. Concrete adapters live in subpackages
// (sqlitestore, memstore).
package storage

import (
	"context"
	"time"
)

// Memory is a persisted memory row.
type Memory struct {
	ID          string
	WorkspaceID string
	Type        string
	Content     string
	Confidence  float64
	Metadata    map[string]any
	Embedding   []float32
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Relationship is a persisted relationship row.
type Relationship struct {
	FromMemoryID     string
	ToMemoryID       string
	RelationshipType string
	Confidence       float64
}

// ScoredMemory pairs a memory with a retrieval score.
type ScoredMemory struct {
	Memory Memory
	Score  float64
}

// SearchQuery parameterizes search_memories: a vector query, a text
// query, or both (callers combine results at the adapter's discretion).
type SearchQuery struct {
	Vector []float32
	Text   string
	Limit  int
}

// CommandRequest mirrors the external command request shape that gets
// persisted alongside its response.
type CommandRequest struct {
	WorkspaceID   string
	UserID        string
	CommandID     string
	Text          string
	Timestamp     time.Time
	ScreenContext map[string]any
	Meta          map[string]any
}

// CommandResponse mirrors the external command response shape.
type CommandResponse struct {
	AssistantText string
	Actions       []Action
}

// Action is one action emitted alongside an assistant response.
type Action struct {
	Type   string
	Params map[string]any
}

// Client is the storage shape the core depends on. Implementations must
// be safe for concurrent readers and single-writer-per-transaction
// writers.
type Client interface {
	CreateMemory(ctx context.Context, workspaceID, memType, content string, confidence float64, metadata map[string]any, embedding []float32) (Memory, error)
	SearchMemories(ctx context.Context, workspaceID string, query SearchQuery) ([]ScoredMemory, error)
	SearchMemoriesText(ctx context.Context, query, workspaceID string, limit int) ([]Memory, error)

	// CreateRelationship returns a non-fatal *memerrors.Error (Kind
	// KindValidation, warn-only) when an endpoint does not resolve to a
	// live memory — callers should log and continue.
	CreateRelationship(ctx context.Context, rel Relationship) (Relationship, error)

	GetRecentFiles(ctx context.Context, workspaceID string, limit int) ([]Memory, error)
	GetRecentNonScreenMemories(ctx context.Context, workspaceID string, limit int) ([]Memory, error)

	SaveCommand(ctx context.Context, req CommandRequest, resp CommandResponse, memoriesUsed []ScoredMemory) error
}
