// Package command implements the end-to-end path from
// an incoming command request through retrieval, LLM response, persistence,
// event emission, and background memory extraction.
package command

import (
	"time"

	"memlayer/internal/storage"
)

// Request is the external command request shape: {user_id, command_id,
// text, timestamp, screen_context?, meta?}.
type Request struct {
	WorkspaceID   string
	UserID        string
	CommandID     string
	Text          string
	Timestamp     time.Time
	ScreenContext map[string]any
	Meta          map[string]any
}

// Response is the external command response shape.
type Response struct {
	CommandID     string
	AssistantText string
	Actions       []storage.Action
	MemoriesUsed  []storage.ScoredMemory
}

// Event is published to subscribers once a command completes.
type Event struct {
	CommandID     string
	WorkspaceID   string
	AssistantText string
	Actions       []storage.Action
}
