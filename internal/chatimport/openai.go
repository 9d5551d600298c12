package chatimport

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// openAIExport is the shape of a ChatGPT "mapping" export: a tree of nodes
// keyed by node id, each carrying an optional message and a parent/children
// linkage used to linearize the conversation in tree order.
type openAIExport struct {
	Title    string                  `json:"title"`
	ID       string                  `json:"id"`
	CreateAt float64                 `json:"create_time"`
	UpdateAt float64                 `json:"update_time"`
	Mapping  map[string]openAINode   `json:"mapping"`
}

type openAINode struct {
	ID       string          `json:"id"`
	Message  *openAIMessage  `json:"message"`
	Parent   *string         `json:"parent"`
	Children []string        `json:"children"`
}

type openAIMessage struct {
	ID         string          `json:"id"`
	Author     openAIAuthor    `json:"author"`
	Content    openAIContent   `json:"content"`
	CreateTime *float64        `json:"create_time"`
}

type openAIAuthor struct {
	Role string `json:"role"`
}

type openAIContent struct {
	Parts []string `json:"parts"`
}

// OpenAIParser normalizes ChatGPT "mapping" tree exports.
type OpenAIParser struct{}

// NewOpenAIParser returns a parser for ChatGPT conversation exports.
func NewOpenAIParser() *OpenAIParser { return &OpenAIParser{} }

// Name implements Parser.
func (p *OpenAIParser) Name() string { return "openai" }

// CanParse reports whether raw looks like an OpenAI "mapping" export, without
// fully decoding message bodies.
func (p *OpenAIParser) CanParse(raw []byte) bool {
	var probe struct {
		Mapping map[string]json.RawMessage `json:"mapping"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Mapping != nil
}

// Parse linearizes the mapping tree in parent-to-child order and emits a
// single NormalizedConversation.
func (p *OpenAIParser) Parse(raw []byte) ([]NormalizedConversation, error) {
	var export openAIExport
	if err := json.Unmarshal(raw, &export); err != nil {
		return nil, fmt.Errorf("openai: invalid json: %w", err)
	}
	if export.Mapping == nil {
		return nil, fmt.Errorf("openai: missing mapping")
	}

	root := findRoot(export.Mapping)
	if root == "" {
		return nil, fmt.Errorf("openai: no root node found in mapping")
	}

	ordered := linearize(export.Mapping, root)

	convID := export.ID
	if convID == "" {
		convID = stableID("openai", export.Title, 0)
	}

	messages := make([]NormalizedMessage, 0, len(ordered))
	position := 0
	for _, nodeID := range ordered {
		node := export.Mapping[nodeID]
		if node.Message == nil {
			continue
		}
		msg := node.Message
		role, ok := mapOpenAIRole(msg.Author.Role)
		if !ok {
			continue // system/tool bookkeeping nodes with no user-facing role
		}
		content := strings.Join(msg.Content.Parts, "\n")
		createdAt := time.Now().UTC()
		if msg.CreateTime != nil {
			createdAt = time.Unix(int64(*msg.CreateTime), 0).UTC()
		}
		id := msg.ID
		if id == "" {
			id = stableID("openai", convID, position)
		}
		messages = append(messages, NormalizedMessage{
			ID:        id,
			Role:      role,
			Content:   content,
			CreatedAt: createdAt,
			RawMetadata: map[string]any{
				"node_id": nodeID,
			},
		})
		position++
	}

	createdAt := epochOrNow(export.CreateAt)
	updatedAt := epochOrNow(export.UpdateAt)
	if updatedAt.Before(createdAt) {
		updatedAt = createdAt
	}

	conv := NormalizedConversation{
		ID:         stableID("openai", convID, 0),
		Provider:   "openai",
		ExternalID: convID,
		Title:      export.Title,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		Messages:   messages,
		RawMetadata: map[string]any{
			"mapping_node_count": len(export.Mapping),
		},
	}
	return []NormalizedConversation{conv}, nil
}

func epochOrNow(epoch float64) time.Time {
	if epoch <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(int64(epoch), 0).UTC()
}

func mapOpenAIRole(role string) (Role, bool) {
	switch role {
	case "user":
		return RoleUser, true
	case "assistant":
		return RoleAssistant, true
	case "system":
		return RoleSystem, true
	default:
		return "", false
	}
}

// findRoot locates the single node with a nil parent (or empty parent id).
func findRoot(mapping map[string]openAINode) string {
	for id, node := range mapping {
		if node.Parent == nil || *node.Parent == "" {
			return id
		}
	}
	return ""
}

// linearize walks the mapping tree depth-first from root, visiting children
// in the order listed, producing a stable left-to-right ordering of nodes.
func linearize(mapping map[string]openAINode, root string) []string {
	var out []string
	var walk func(id string)
	walk = func(id string) {
		node, ok := mapping[id]
		if !ok {
			return
		}
		out = append(out, id)
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(root)
	return out
}
