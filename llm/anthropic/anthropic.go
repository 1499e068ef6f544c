// Package anthropic provides an llm.Provider backed by the Anthropic API.
//
// Anthropic's wire format differs from the canonical shapes in two ways the
// adapter has to absorb: there is no "tool" role (tool results ride in user
// messages as tool_result blocks), and tool results must immediately follow
// the assistant message that requested them. The engine's message-ordering
// invariant guarantees the second; the adapter handles the first.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	ant "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/saltpond/drover/llm"
)

// structuredToolName is the forced tool used to emulate schema-constrained
// output; Anthropic has no native JSON-schema response format.
const structuredToolName = "record_structured_output"

// Provider implements llm.Provider using the Anthropic API.
type Provider struct {
	client    *ant.Client
	model     string
	maxTokens int64
	prices    *llm.PriceTable
}

type config struct {
	maxTokens int64
	prices    *llm.PriceTable
}

// Option is a functional option for Provider.
type Option func(*config)

// WithMaxTokens caps completion length. Defaults to 4096.
func WithMaxTokens(n int64) Option {
	return func(c *config) { c.maxTokens = n }
}

// WithPriceTable overrides the built-in price table used to derive costs.
func WithPriceTable(t *llm.PriceTable) Option {
	return func(c *config) { c.prices = t }
}

// New constructs an Anthropic-backed Provider. apiKey must be non-empty; the
// usual resolution source is the ANTHROPIC_API_KEY environment variable, but
// the caller owns that lookup.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, &llm.ConfigurationError{SDKError: llm.SDKError{
			Message: "anthropic: missing API credential (expected ANTHROPIC_API_KEY or equivalent)",
		}}
	}
	if model == "" {
		return nil, &llm.ConfigurationError{SDKError: llm.SDKError{
			Message: "anthropic: model must not be empty",
		}}
	}

	cfg := &config{maxTokens: 4096, prices: llm.DefaultPriceTable()}
	for _, o := range opts {
		o(cfg)
	}

	client := ant.NewClient(option.WithAPIKey(apiKey))
	return &Provider{client: &client, model: model, maxTokens: cfg.maxTokens, prices: cfg.prices}, nil
}

// Model implements llm.Provider.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema) (*llm.Response, error) {
	params, err := p.buildParams(messages)
	if err != nil {
		return nil, err
	}
	if len(tools) > 0 {
		params.Tools = toTools(tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	if err := checkStopReason(string(resp.StopReason)); err != nil {
		return nil, err
	}

	out := &llm.Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if out.Content != "" {
				out.Content += "\n"
			}
			out.Content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			args, err := llm.ParseArguments(tu.Input)
			if err != nil {
				return nil, err
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: args,
			})
		}
	}

	out.Usage = llm.TokenUsage{
		InputTokens:      uint64(resp.Usage.InputTokens),
		OutputTokens:     uint64(resp.Usage.OutputTokens),
		CachedTokens:     uint64(resp.Usage.CacheReadInputTokens),
		CacheWriteTokens: uint64(resp.Usage.CacheCreationInputTokens),
	}
	out.Usage.Cost = p.prices.Cost(p.model, out.Usage)

	return out, nil
}

// StructuredComplete implements llm.Provider by forcing a single tool whose
// input schema is the requested output schema; the tool input is the result.
func (p *Provider) StructuredComplete(ctx context.Context, messages []llm.Message, schema map[string]any) (json.RawMessage, error) {
	params, err := p.buildParams(messages)
	if err != nil {
		return nil, err
	}

	props, required := splitSchema(schema)
	params.Tools = []ant.ToolUnionParam{{
		OfTool: &ant.ToolParam{
			Name:        structuredToolName,
			Description: ant.String("Record the structured output of this conversation."),
			InputSchema: ant.ToolInputSchemaParam{
				Properties: props,
				Required:   required,
			},
		},
	}}
	params.ToolChoice = ant.ToolChoiceUnionParam{
		OfTool: &ant.ToolChoiceToolParam{Name: structuredToolName},
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	if err := checkStopReason(string(resp.StopReason)); err != nil {
		return nil, err
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			tu := block.AsToolUse()
			if tu.Name == structuredToolName {
				return json.RawMessage(tu.Input), nil
			}
		}
	}
	return nil, &llm.ProviderError{SDKError: llm.SDKError{
		Message: "anthropic: model produced no structured output block",
	}, Provider: "anthropic"}
}

// buildParams converts canonical messages into Anthropic SDK params. System
// messages are hoisted into the dedicated system field.
func (p *Provider) buildParams(messages []llm.Message) (ant.MessageNewParams, error) {
	params := ant.MessageNewParams{
		Model:     ant.Model(p.model),
		MaxTokens: p.maxTokens,
	}

	var system string
	antMsgs := make([]ant.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case llm.RoleUser:
			antMsgs = append(antMsgs, ant.NewUserMessage(ant.NewTextBlock(m.Content)))
		case llm.RoleTool:
			antMsgs = append(antMsgs, ant.NewUserMessage(
				ant.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		case llm.RoleAssistant:
			blocks := make([]ant.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, ant.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input, err := json.Marshal(tc.Arguments)
				if err != nil {
					return ant.MessageNewParams{}, &llm.SDKError{Message: "anthropic: encode arguments for " + tc.Name, Cause: err}
				}
				blocks = append(blocks, ant.ContentBlockParamUnion{
					OfToolUse: &ant.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: json.RawMessage(input),
					},
				})
			}
			antMsgs = append(antMsgs, ant.NewAssistantMessage(blocks...))
		}
	}

	if system != "" {
		params.System = []ant.TextBlockParam{{Text: system}}
	}
	params.Messages = antMsgs
	return params, nil
}

func toTools(tools []llm.ToolSchema) []ant.ToolUnionParam {
	out := make([]ant.ToolUnionParam, len(tools))
	for i, t := range tools {
		props, required := splitSchema(t.Parameters)
		out[i] = ant.ToolUnionParam{
			OfTool: &ant.ToolParam{
				Name:        t.Name,
				Description: ant.String(t.Description),
				InputSchema: ant.ToolInputSchemaParam{
					Properties: props,
					Required:   required,
				},
			},
		}
	}
	return out
}

// splitSchema extracts properties and required from a JSON-schema object map.
func splitSchema(schema map[string]any) (map[string]any, []string) {
	props, _ := schema["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	var required []string
	switch req := schema["required"].(type) {
	case []string:
		required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	}
	return props, required
}

// checkStopReason turns incomplete-generation statuses into typed errors.
// tool_use and end_turn are the two healthy outcomes.
func checkStopReason(reason string) error {
	switch reason {
	case "max_tokens":
		return &llm.TruncatedError{ProviderError: llm.ProviderError{
			SDKError: llm.SDKError{Message: "anthropic: generation truncated at output token limit"},
			Provider: "anthropic",
		}}
	case "refusal":
		return &llm.RefusedError{ProviderError: llm.ProviderError{
			SDKError: llm.SDKError{Message: "anthropic: model refused to generate"},
			Provider: "anthropic",
		}}
	default:
		return nil
	}
}

// translateError maps an SDK error onto the llm error hierarchy.
func translateError(err error) error {
	var apiErr *ant.Error
	if errors.As(err, &apiErr) {
		return llm.ErrorFromStatusCode(apiErr.StatusCode, apiErr.Error(), "anthropic", nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &llm.AbortError{SDKError: llm.SDKError{Message: "anthropic: request aborted", Cause: err}}
	}
	return &llm.NetworkError{SDKError: llm.SDKError{Message: "anthropic: request failed", Cause: err}}
}
