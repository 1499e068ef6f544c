// Package openai provides an llm.Provider backed by the OpenAI API.
//
// It works against any OpenAI-compatible endpoint (OpenAI, vLLM, Groq,
// Ollama's compatibility layer) via a configurable base URL.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/saltpond/drover/llm"
)

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client *oai.Client
	model  string
	prices *llm.PriceTable
}

type config struct {
	baseURL string
	timeout time.Duration
	prices  *llm.PriceTable
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithPriceTable overrides the built-in price table used to derive costs.
func WithPriceTable(t *llm.PriceTable) Option {
	return func(c *config) { c.prices = t }
}

// New constructs an OpenAI-backed Provider. apiKey must be non-empty; the
// usual resolution source is the OPENAI_API_KEY environment variable, but
// the caller owns that lookup.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, &llm.ConfigurationError{SDKError: llm.SDKError{
			Message: "openai: missing API credential (expected OPENAI_API_KEY or equivalent)",
		}}
	}
	if model == "" {
		return nil, &llm.ConfigurationError{SDKError: llm.SDKError{
			Message: "openai: model must not be empty",
		}}
	}

	cfg := &config{prices: llm.DefaultPriceTable()}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: &client, model: model, prices: cfg.prices}, nil
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

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.ProviderError{SDKError: llm.SDKError{
			Message: "openai: empty choices in response",
		}, Provider: "openai"}
	}

	choice := resp.Choices[0]
	if err := checkFinishReason(choice.FinishReason); err != nil {
		return nil, err
	}

	out := &llm.Response{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		args, err := llm.ParseArguments([]byte(tc.Function.Arguments))
		if err != nil {
			return nil, err
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	out.Usage = llm.TokenUsage{
		InputTokens:  uint64(resp.Usage.PromptTokens),
		OutputTokens: uint64(resp.Usage.CompletionTokens),
		CachedTokens: uint64(resp.Usage.PromptTokensDetails.CachedTokens),
	}
	out.Usage.Cost = p.prices.Cost(p.model, out.Usage)

	return out, nil
}

// StructuredComplete implements llm.Provider using the JSON-schema response
// format. The returned document is the raw model output; schema conformance
// is enforced server-side by strict mode.
func (p *Provider) StructuredComplete(ctx context.Context, messages []llm.Message, schema map[string]any) (json.RawMessage, error) {
	params, err := p.buildParams(messages)
	if err != nil {
		return nil, err
	}
	params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   "structured_output",
				Schema: schema,
				Strict: oai.Bool(true),
			},
		},
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.ProviderError{SDKError: llm.SDKError{
			Message: "openai: empty choices in response",
		}, Provider: "openai"}
	}
	choice := resp.Choices[0]
	if err := checkFinishReason(choice.FinishReason); err != nil {
		return nil, err
	}

	raw := json.RawMessage(choice.Message.Content)
	if !json.Valid(raw) {
		return nil, &llm.InvalidToolCallError{SDKError: llm.SDKError{
			Message: "openai: structured output is not valid JSON",
		}}
	}
	return raw, nil
}

// buildParams converts canonical messages into OpenAI SDK params.
func (p *Provider) buildParams(messages []llm.Message) (oai.ChatCompletionNewParams, error) {
	oaiMsgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		msg, err := toMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		oaiMsgs = append(oaiMsgs, msg)
	}
	return oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: oaiMsgs,
	}, nil
}

func toTools(tools []llm.ToolSchema) []oai.ChatCompletionToolParam {
	out := make([]oai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		out[i] = oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		}
	}
	return out
}

func toMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil
	case llm.RoleTool:
		return oai.ToolMessage(m.Content, m.ToolCallID), nil
	case llm.RoleAssistant:
		asst := oai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = param.NewOpt(m.Content)
		}
		if len(m.ToolCalls) > 0 {
			asst.ToolCalls = make([]oai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				argBytes, err := json.Marshal(tc.Arguments)
				if err != nil {
					return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: encode arguments for %s: %w", tc.Name, err)
				}
				asst.ToolCalls[i] = oai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: oai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(argBytes),
					},
				}
			}
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unsupported role %q", m.Role)
	}
}

// checkFinishReason turns incomplete-generation statuses into typed errors
// so callers never see ambiguous empty responses.
func checkFinishReason(reason string) error {
	switch reason {
	case "length":
		return &llm.TruncatedError{ProviderError: llm.ProviderError{
			SDKError: llm.SDKError{Message: "openai: generation truncated at output token limit"},
			Provider: "openai",
		}}
	case "content_filter":
		return &llm.ContentFilterError{ProviderError: llm.ProviderError{
			SDKError: llm.SDKError{Message: "openai: generation suppressed by content filter"},
			Provider: "openai",
		}}
	default:
		return nil
	}
}

// translateError maps an SDK error onto the llm error hierarchy.
func translateError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return llm.ErrorFromStatusCode(apiErr.StatusCode, apiErr.Message, "openai", nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &llm.AbortError{SDKError: llm.SDKError{Message: "openai: request aborted", Cause: err}}
	}
	return &llm.NetworkError{SDKError: llm.SDKError{Message: "openai: request failed", Cause: err}}
}
