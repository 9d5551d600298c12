package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"memlayer/internal/memerrors"
)

// OpenAIProvider wraps the official OpenAI Responses API as a Provider.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider returns a provider targeting the given model.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// flattenMessages joins the request into a single Responses-API input
// string, tagging each system and assistant turn with its role.
func flattenMessages(messages []Message) string {
	var sb strings.Builder
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			fmt.Fprintf(&sb, "System: %s\n\n", m.Content)
		case RoleAssistant:
			fmt.Fprintf(&sb, "Assistant: %s\n\n", m.Content)
		default:
			sb.WriteString(m.Content)
		}
	}
	return sb.String()
}

func (p *OpenAIProvider) baseParams(req Request) responses.ResponseNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return responses.ResponseNewParams{
		Model:           p.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(flattenMessages(req.Messages))},
	}
}

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	params := p.baseParams(req)
	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, classifyOpenAIError(err)
	}
	if resp == nil {
		return Response{}, memerrors.New(memerrors.KindLLM, "received empty response from OpenAI")
	}
	return Response{Content: resp.OutputText()}, nil
}

// CompleteStructured implements Provider.
func (p *OpenAIProvider) CompleteStructured(ctx context.Context, req Request, schema Schema) (string, error) {
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

// CompleteWithFunctions implements Provider using the Responses API's
// function-tool support.
func (p *OpenAIProvider) CompleteWithFunctions(ctx context.Context, req Request, functions []FunctionDefinition) (FunctionCallResult, error) {
	params := p.baseParams(req)
	params.Tools = toOpenAITools(functions)

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return FunctionCallResult{}, classifyOpenAIError(err)
	}
	if resp == nil {
		return FunctionCallResult{}, memerrors.New(memerrors.KindLLM, "received empty response from OpenAI")
	}

	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		funcItem := item.AsFunctionCall()
		var args map[string]any
		if funcItem.Arguments != "" {
			if err := json.Unmarshal([]byte(funcItem.Arguments), &args); err != nil {
				return FunctionCallResult{}, memerrors.NewParseError(err, funcItem.Arguments)
			}
		}
		return FunctionCallResult{Name: funcItem.Name, Arguments: args}, nil
	}
	return FunctionCallResult{}, memerrors.NewParseError(nil, "no function call in response")
}

func toOpenAITools(functions []FunctionDefinition) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(functions))
	for _, fn := range functions {
		properties := make(map[string]any, len(fn.Parameters.Properties))
		for name, prop := range fn.Parameters.Properties {
			properties[name] = propertyToSchemaMap(prop)
		}
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        fn.Name,
				Description: openai.String(fn.Description),
				Parameters: openai.FunctionParameters(map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   fn.Parameters.Required,
				}),
			},
		})
	}
	return out
}

// propertyToSchemaMap recursively converts a Property to a plain
// JSON-schema map.
func propertyToSchemaMap(prop Property) map[string]any {
	schema := map[string]any{"type": prop.Type}
	if prop.Description != "" {
		schema["description"] = prop.Description
	}
	if len(prop.Enum) > 0 {
		schema["enum"] = prop.Enum
	}
	if prop.Type == "array" && prop.Items != nil {
		schema["items"] = propertyToSchemaMap(*prop.Items)
	}
	if prop.Type == "object" && prop.Properties != nil {
		nested := make(map[string]any, len(prop.Properties))
		for name, child := range prop.Properties {
			nested[name] = propertyToSchemaMap(child)
		}
		schema["properties"] = nested
	}
	return schema
}

func classifyOpenAIError(err error) error {
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
		return memerrors.Wrap(memerrors.KindLLM, err, "openai transient error")
	default:
		return memerrors.Wrap(memerrors.KindLLM, err, fmt.Sprintf("openai request failed: %s", err.Error()))
	}
}
