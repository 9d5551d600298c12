package chatimport

import (
	"encoding/json"
	"fmt"
	"time"
)

// anthropicExport is the shape of a Claude "chat_messages" export: a flat,
// already-ordered list of messages, each tagged with a sender.
type anthropicExport struct {
	UUID         string              `json:"uuid"`
	Name         string              `json:"name"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
	ChatMessages []anthropicMessage  `json:"chat_messages"`
}

type anthropicMessage struct {
	UUID      string `json:"uuid"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// AnthropicParser normalizes Claude "chat_messages" exports.
type AnthropicParser struct{}

// NewAnthropicParser returns a parser for Claude conversation exports.
func NewAnthropicParser() *AnthropicParser { return &AnthropicParser{} }

// Name implements Parser.
func (p *AnthropicParser) Name() string { return "anthropic" }

// CanParse reports whether raw carries a "chat_messages" array.
func (p *AnthropicParser) CanParse(raw []byte) bool {
	var probe struct {
		ChatMessages []json.RawMessage `json:"chat_messages"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.ChatMessages != nil
}

// Parse normalizes the flat chat_messages list into conversation order.
func (p *AnthropicParser) Parse(raw []byte) ([]NormalizedConversation, error) {
	var export anthropicExport
	if err := json.Unmarshal(raw, &export); err != nil {
		return nil, fmt.Errorf("anthropic: invalid json: %w", err)
	}
	if export.ChatMessages == nil {
		return nil, fmt.Errorf("anthropic: missing chat_messages")
	}

	convID := export.UUID
	if convID == "" {
		convID = stableID("anthropic", export.Name, 0)
	}

	messages := make([]NormalizedMessage, 0, len(export.ChatMessages))
	for i, m := range export.ChatMessages {
		role, ok := mapAnthropicSender(m.Sender)
		if !ok {
			continue
		}
		id := m.UUID
		if id == "" {
			id = stableID("anthropic", convID, i)
		}
		createdAt := parseTimestampOrNow(m.CreatedAt)
		messages = append(messages, NormalizedMessage{
			ID:        id,
			Role:      role,
			Content:   m.Text,
			CreatedAt: createdAt,
			RawMetadata: map[string]any{
				"sender": m.Sender,
			},
		})
	}

	createdAt := parseTimestampOrNow(export.CreatedAt)
	updatedAt := parseTimestampOrNow(export.UpdatedAt)
	if updatedAt.Before(createdAt) {
		updatedAt = createdAt
	}

	conv := NormalizedConversation{
		ID:          stableID("anthropic", convID, 0),
		Provider:    "anthropic",
		ExternalID:  convID,
		Title:       export.Name,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		Messages:    messages,
		RawMetadata: map[string]any{},
	}
	return []NormalizedConversation{conv}, nil
}

func mapAnthropicSender(sender string) (Role, bool) {
	switch sender {
	case "human":
		return RoleUser, true
	case "assistant":
		return RoleAssistant, true
	default:
		return "", false
	}
}

func parseTimestampOrNow(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
