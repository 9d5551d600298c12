package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"memlayer/internal/memerrors"
)

// AnthropicProvider wraps the Anthropic Messages API as a Provider.
// System-role messages are extracted into the request's system prompt
// before the request is sent; the remaining messages are sent in order as
// given, so consecutive same-role turns are not merged.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider returns a provider targeting the given model (e.g.
// anthropic.ModelClaude3_7SonnetLatest).
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0), // retries are owned by completion.RetryMiddleware
	)
	return &AnthropicProvider{client: client, model: anthropic.Model(model)}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// splitSystemPrompt extracts system-role messages into a single prompt
// string and returns the remaining user/assistant messages, mirroring the
// teacher's ensureAlternation system-message extraction step.
func splitSystemPrompt(messages []Message) (string, []Message) {
	var systemParts []string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			systemParts = append(systemParts, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(systemParts, "\n\n"), rest
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		role := anthropic.MessageParamRoleUser
		if m.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)},
		})
	}
	return out
}

func (p *AnthropicProvider) buildParams(req Request) anthropic.MessageNewParams {
	systemPrompt, rest := splitSystemPrompt(req.Messages)
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:       p.model,
		Messages:    toAnthropicMessages(rest),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(float64(req.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt, Type: "text"}}
	}
	return params
}

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (Response, error) {
	params := p.buildParams(req)
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, classifyAnthropicError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return Response{}, memerrors.New(memerrors.KindLLM, "received empty response from Anthropic")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return Response{Content: text.String()}, nil
}

// CompleteStructured implements Provider by asking for JSON in the system
// prompt and cleaning the returned body through cleanMarkdownJSON.
func (p *AnthropicProvider) CompleteStructured(ctx context.Context, req Request, schema Schema) (string, error) {
	instructed := withStructuredInstruction(req, schema)
	resp, err := p.Complete(ctx, instructed)
	if err != nil {
		return "", err
	}
	cleaned, err := cleanMarkdownJSON(resp.Content)
	if err != nil {
		return "", memerrors.NewParseError(err, resp.Content)
	}
	return cleaned, nil
}

// CompleteWithFunctions implements Provider using Anthropic's tool-use API.
func (p *AnthropicProvider) CompleteWithFunctions(ctx context.Context, req Request, functions []FunctionDefinition) (FunctionCallResult, error) {
	params := p.buildParams(req)
	params.Tools = toAnthropicTools(functions)
	params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return FunctionCallResult{}, classifyAnthropicError(err)
	}
	if resp == nil {
		return FunctionCallResult{}, memerrors.New(memerrors.KindLLM, "received empty response from Anthropic")
	}

	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type != "tool_use" {
			continue
		}
		toolUse := block.AsToolUse()
		var args map[string]any
		if err := json.Unmarshal(toolUse.Input, &args); err != nil {
			return FunctionCallResult{}, memerrors.NewParseError(err, string(toolUse.Input))
		}
		return FunctionCallResult{Name: toolUse.Name, Arguments: args}, nil
	}
	return FunctionCallResult{}, memerrors.NewParseError(nil, "no tool call in response")
}

func toAnthropicTools(functions []FunctionDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(functions))
	for _, fn := range functions {
		properties := make(map[string]any, len(fn.Parameters.Properties))
		for name, prop := range fn.Parameters.Properties {
			propMap := map[string]any{"type": prop.Type}
			if prop.Description != "" {
				propMap["description"] = prop.Description
			}
			if len(prop.Enum) > 0 {
				propMap["enum"] = prop.Enum
			}
			properties[name] = propMap
		}
		schema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: properties,
			Required:   fn.Parameters.Required,
		}
		out = append(out, anthropic.ToolUnionParamOfTool(schema, fn.Name))
	}
	return out
}

// classifyAnthropicError maps the SDK's error text to a *memerrors.Error
// by string pattern, since the SDK's own error type does not expose a
// stable status-code field across versions.
func classifyAnthropicError(err error) error {
	if err == nil {
		return nil
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "429") || strings.Contains(errStr, "rate") || strings.Contains(errStr, "quota"):
		return memerrors.NewRateLimitError(defaultRetryAfter)
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection"):
		return memerrors.Wrap(memerrors.KindLLM, err, "anthropic transient error")
	default:
		return memerrors.Wrap(memerrors.KindLLM, err, fmt.Sprintf("anthropic request failed: %s", err.Error()))
	}
}

// withStructuredInstruction appends a JSON-only instruction describing
// schema to the last message, whatever its role (or adds it as a new user
// message if the request is otherwise empty).
func withStructuredInstruction(req Request, schema Schema) Request {
	raw, _ := json.MarshalIndent(schema, "", "  ")
	instruction := fmt.Sprintf("\n\nRespond with a single JSON object matching exactly this schema, with no surrounding prose or markdown fences:\n%s", raw)

	out := Request{Temperature: req.Temperature, MaxTokens: req.MaxTokens}
	out.Messages = append(out.Messages, req.Messages...)
	if len(out.Messages) > 0 {
		last := &out.Messages[len(out.Messages)-1]
		last.Content += instruction
	} else {
		out.Messages = append(out.Messages, Message{Role: RoleUser, Content: instruction})
	}
	return out
}
