package chatimport

import (
	"strconv"

	"github.com/google/uuid"

	"memlayer/internal/memerrors"
)

// idNamespace roots the deterministic UUIDv5 ids derived for messages and
// conversations, so that re-parsing the same export yields the same ids.
//
//nolint:gochecknoglobals // fixed namespace constant, not mutable configuration
var idNamespace = uuid.MustParse("6f2d9b3e-6c2a-4c1a-9b7a-2e3b6f6f9a10")

// stableID derives a deterministic id from a provider, an external identifier,
// and a position, so that parsing the same raw export twice yields identical ids.
func stableID(provider, externalID string, position int) string {
	name := provider + "|" + externalID + "|" + strconv.Itoa(position)
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

// Parser normalizes a provider-specific raw export into canonical conversations.
type Parser interface {
	// Name identifies the provider this parser handles (e.g. "openai", "anthropic").
	Name() string
	// CanParse reports whether raw looks like this provider's export format,
	// without fully parsing it.
	CanParse(raw []byte) bool
	// Parse normalizes raw into zero or more conversations.
	Parse(raw []byte) ([]NormalizedConversation, error)
}

// Registry maps provider identifiers to parsers and supports auto-detection.
type Registry struct {
	parsers []Parser
}

// NewRegistry returns a registry with the built-in OpenAI and Anthropic
// parsers registered, in that order.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(NewOpenAIParser())
	r.Register(NewAnthropicParser())
	return r
}

// Register appends a parser, making it a candidate for Detect in registration order.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Get returns the parser registered under the given provider name.
func (r *Registry) Get(provider string) (Parser, bool) {
	for _, p := range r.parsers {
		if p.Name() == provider {
			return p, true
		}
	}
	return nil, false
}

// Detect returns the first registered parser whose CanParse accepts raw.
func (r *Registry) Detect(raw []byte) (Parser, error) {
	for _, p := range r.parsers {
		if p.CanParse(raw) {
			return p, nil
		}
	}
	return nil, memerrors.New(memerrors.KindDetectionFailed, "no registered parser recognized the input format")
}

// Parse detects the provider and normalizes raw in one step.
func (r *Registry) Parse(raw []byte) ([]NormalizedConversation, error) {
	p, err := r.Detect(raw)
	if err != nil {
		return nil, err
	}
	convs, err := p.Parse(raw)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.KindParse, err, "failed to parse "+p.Name()+" export")
	}
	return convs, nil
}

// ParseAs parses raw using a specific, previously registered provider's parser.
func (r *Registry) ParseAs(provider string, raw []byte) ([]NormalizedConversation, error) {
	p, ok := r.Get(provider)
	if !ok {
		return nil, memerrors.New(memerrors.KindProviderNotFound, "no parser registered for provider "+provider)
	}
	convs, err := p.Parse(raw)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.KindParse, err, "failed to parse "+provider+" export")
	}
	return convs, nil
}
