package extraction

import (
	"sort"
	"strings"
	"sync"

	"memlayer/internal/completion"
	"memlayer/internal/memerrors"
)

//nolint:gochecknoglobals // fixed built-in extraction templates
var defaultPrompts = map[string]string{
	TypeEntity:   "Extract ENTITIES: people, organizations, places, or things the conversation names explicitly. One memory per entity.",
	TypeFact:     "Extract FACTS: durable, factual statements about the user or their situation (skills, preferences, background). One memory per fact.",
	TypeDecision: "Extract DECISIONS: choices, conclusions, or commitments made during the conversation. One memory per decision.",
}

//nolint:gochecknoglobals // fixed built-in metadata sub-schemas
var defaultMetadataSchemas = map[string]completion.Schema{
	TypeEntity: {
		Type: "object",
		Properties: map[string]completion.Property{
			"entity_type": {Type: "string", Description: "kind of entity, e.g. person, organization, place"},
			"name":        {Type: "string", Description: "canonical name of the entity"},
		},
	},
	TypeFact: {
		Type: "object",
		Properties: map[string]completion.Property{
			"category": {Type: "string", Description: "optional grouping, e.g. skill, preference"},
		},
	},
	TypeDecision: {
		Type:       "object",
		Properties: map[string]completion.Property{},
	},
}

// IsBuiltin reports whether name (already normalized) is one of the three
// default memory types.
func IsBuiltin(name string) bool {
	switch name {
	case TypeEntity, TypeFact, TypeDecision:
		return true
	default:
		return false
	}
}

// Registry holds custom memory-type registrations, supplementing the
// built-in entity/fact/decision types.
type Registry struct {
	mu     sync.RWMutex
	custom map[string]TypeConfig
}

// NewRegistry returns a registry with no custom types registered.
func NewRegistry() *Registry {
	return &Registry{custom: make(map[string]TypeConfig)}
}

// RegisterMemoryType adds a custom memory type, validating it against the
// registration rules for register_memory_type. Registration is
// case-insensitive; name is normalized to lowercase.
func (r *Registry) RegisterMemoryType(name string, cfg TypeConfig) error {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return memerrors.New(memerrors.KindValidation, "memory type name must not be empty")
	}
	if IsBuiltin(normalized) {
		return memerrors.New(memerrors.KindValidation, "memory type \""+normalized+"\" conflicts with a default type")
	}
	if strings.ToLower(strings.TrimSpace(cfg.Type)) != normalized {
		return memerrors.New(memerrors.KindValidation, "config.Type must match the registration name")
	}
	if strings.TrimSpace(cfg.ExtractionPrompt) == "" {
		return memerrors.New(memerrors.KindValidation, "extraction prompt must not be empty")
	}
	if cfg.Schema.Type == "" {
		return memerrors.New(memerrors.KindValidation, "schema must declare a type")
	}
	if cfg.Schema.Type == "object" && len(cfg.Schema.Properties) == 0 {
		return memerrors.New(memerrors.KindValidation, "object schema must declare properties")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[normalized] = TypeConfig{
		Type:             normalized,
		ExtractionPrompt: cfg.ExtractionPrompt,
		Schema:           cfg.Schema,
	}
	return nil
}

// resolve returns the extraction prompt and metadata schema for a
// configured memory type, whether built-in or custom.
func (r *Registry) resolve(name string) (prompt string, schema completion.Schema, ok bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if IsBuiltin(normalized) {
		return defaultPrompts[normalized], defaultMetadataSchemas[normalized], true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, found := r.custom[normalized]
	if !found {
		return "", completion.Schema{}, false
	}
	return cfg.ExtractionPrompt, cfg.Schema, true
}

// RegisteredTypes returns every type name known to this registry: the
// three built-ins (in a fixed order) followed by registered custom types
// in sorted order.
func (r *Registry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []string{TypeEntity, TypeFact, TypeDecision}
	custom := make([]string, 0, len(r.custom))
	for name := range r.custom {
		custom = append(custom, name)
	}
	sort.Strings(custom)
	return append(out, custom...)
}
