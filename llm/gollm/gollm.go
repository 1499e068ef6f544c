// Package gollm provides an llm.Provider backed by github.com/teilomillet/gollm,
// covering backends that have no dedicated adapter (local models, smaller
// hosted providers). gollm exposes a text-first API, so tool calls are
// recovered from JSON embedded in the generated text; backends with native
// tool-call wire support should use llm/openai or llm/anthropic instead.
package gollm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	gl "github.com/teilomillet/gollm"

	"github.com/saltpond/drover/llm"
)

// Provider implements llm.Provider by wrapping a gollm.LLM instance.
type Provider struct {
	backend  gl.LLM
	provider string
	model    string
	prices   *llm.PriceTable
}

type config struct {
	maxTokens   int
	temperature float64
	prices      *llm.PriceTable
	extraOpts   []gl.ConfigOption
}

// Option is a functional option for Provider.
type Option func(*config)

// WithMaxTokens sets the completion token cap. Defaults to 4096.
func WithMaxTokens(n int) Option {
	return func(c *config) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature. Defaults to 0.7.
func WithTemperature(t float64) Option {
	return func(c *config) { c.temperature = t }
}

// WithPriceTable overrides the built-in price table used to derive costs.
func WithPriceTable(t *llm.PriceTable) Option {
	return func(c *config) { c.prices = t }
}

// WithGollmOptions appends extra gollm configuration options.
func WithGollmOptions(opts ...gl.ConfigOption) Option {
	return func(c *config) { c.extraOpts = append(c.extraOpts, opts...) }
}

// New constructs a gollm-backed Provider for the named backend ("ollama",
// "mistral", ...). apiKey may be empty only for backends that need none
// (local inference); hosted backends reject an empty key at construction.
func New(providerName, apiKey, model string, opts ...Option) (*Provider, error) {
	if providerName == "" {
		return nil, &llm.ConfigurationError{SDKError: llm.SDKError{
			Message: "gollm: provider name must not be empty",
		}}
	}
	if model == "" {
		return nil, &llm.ConfigurationError{SDKError: llm.SDKError{
			Message: "gollm: model must not be empty",
		}}
	}
	if apiKey == "" && providerName != "ollama" && providerName != "llamacpp" {
		return nil, &llm.ConfigurationError{SDKError: llm.SDKError{
			Message: "gollm: missing API credential for provider " + providerName +
				" (expected " + strings.ToUpper(providerName) + "_API_KEY or equivalent)",
		}}
	}

	cfg := &config{maxTokens: 4096, temperature: 0.7, prices: llm.DefaultPriceTable()}
	for _, o := range opts {
		o(cfg)
	}

	glOpts := []gl.ConfigOption{
		gl.SetProvider(providerName),
		gl.SetModel(model),
		gl.SetMaxTokens(cfg.maxTokens),
		gl.SetTemperature(cfg.temperature),
		gl.SetMaxRetries(0), // retries are the caller's concern
		gl.SetLogLevel(gl.LogLevelWarn),
	}
	if apiKey != "" {
		glOpts = append(glOpts, gl.SetAPIKey(apiKey))
	}
	glOpts = append(glOpts, cfg.extraOpts...)

	backend, err := gl.NewLLM(glOpts...)
	if err != nil {
		return nil, &llm.ConfigurationError{SDKError: llm.SDKError{
			Message: "gollm: create backend " + providerName, Cause: err,
		}}
	}

	return &Provider{backend: backend, provider: providerName, model: model, prices: cfg.prices}, nil
}

// Model implements llm.Provider.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema) (*llm.Response, error) {
	prompt := p.buildPrompt(messages, tools)

	text, err := p.backend.Generate(ctx, prompt)
	if err != nil {
		return nil, p.translateError(err)
	}

	out := &llm.Response{}
	calls, cleaned, err := parseToolCalls(text)
	if err != nil {
		return nil, err
	}
	out.ToolCalls = calls
	out.Content = cleaned

	// gollm does not expose token accounting; estimate so cost tracking
	// stays monotonic rather than silently zero.
	out.Usage = llm.TokenUsage{
		InputTokens:  estimateTokens(messages),
		OutputTokens: uint64(len(text) / 4),
	}
	out.Usage.Cost = p.prices.Cost(p.model, out.Usage)

	return out, nil
}

// StructuredComplete implements llm.Provider by instructing the model to
// answer with a single JSON document matching the schema.
func (p *Provider) StructuredComplete(ctx context.Context, messages []llm.Message, schema map[string]any) (json.RawMessage, error) {
	schemaText, err := json.Marshal(schema)
	if err != nil {
		return nil, &llm.SDKError{Message: "gollm: encode output schema", Cause: err}
	}

	instructed := append([]llm.Message{}, messages...)
	instructed = append(instructed, llm.SystemMessage(
		"Respond with a single JSON document matching this JSON schema, and nothing else:\n"+string(schemaText)))

	prompt := p.buildPrompt(instructed, nil)
	text, err := p.backend.Generate(ctx, prompt)
	if err != nil {
		return nil, p.translateError(err)
	}

	raw := extractJSON(text)
	if raw == nil {
		return nil, &llm.ProviderError{SDKError: llm.SDKError{
			Message: "gollm: model produced no JSON document",
		}, Provider: p.provider}
	}
	return raw, nil
}

// buildPrompt flattens the conversation into gollm's single-prompt shape.
func (p *Provider) buildPrompt(messages []llm.Message, tools []llm.ToolSchema) *gl.Prompt {
	var system strings.Builder
	var parts []string

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			system.WriteString(m.Content)
			system.WriteString("\n")
		case llm.RoleUser:
			parts = append(parts, m.Content)
		case llm.RoleAssistant:
			if m.Content != "" {
				parts = append(parts, "[Assistant]: "+m.Content)
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				parts = append(parts, "[Assistant called "+tc.Name+"]: "+string(args))
			}
		case llm.RoleTool:
			parts = append(parts, "[Tool Result]: "+m.Content)
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	promptOpts := []gl.PromptOption{}
	if s := strings.TrimSpace(system.String()); s != "" {
		promptOpts = append(promptOpts, gl.WithSystemPrompt(s, gl.CacheTypeEphemeral))
	}
	if len(tools) > 0 {
		glTools := make([]gl.Tool, 0, len(tools))
		for _, t := range tools {
			glTools = append(glTools, gl.Tool{
				Type: "function",
				Function: gl.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gl.WithTools(glTools))
		promptOpts = append(promptOpts, gl.WithToolChoice("auto"))
	}

	return gl.NewPrompt(promptText, promptOpts...)
}

// parseToolCalls recovers tool calls gollm embeds in the response text and
// returns the remaining text. A payload that looks like tool calls but does
// not decode is a fatal InvalidToolCallError.
func parseToolCalls(text string) ([]llm.ToolCall, string, error) {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		return nil, text, nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err != nil {
		return nil, "", &llm.InvalidToolCallError{SDKError: llm.SDKError{
			Message: "gollm: malformed tool call payload in response text",
			Cause:   err,
		}}
	}

	calls := make([]llm.ToolCall, 0, len(rawCalls))
	for _, rc := range rawCalls {
		args, err := llm.ParseArguments(rc.Arguments)
		if err != nil {
			return nil, "", err
		}
		calls = append(calls, llm.ToolCall{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: args,
		})
	}

	return calls, strings.TrimSpace(text[:start]), nil
}

// extractJSON returns the first JSON object or array found in text.
func extractJSON(text string) json.RawMessage {
	for _, open := range []string{"{", "["} {
		if idx := strings.Index(text, open); idx != -1 {
			candidate := strings.TrimSpace(text[idx:])
			// Trim trailing prose after the document, e.g. markdown fences.
			if end := strings.LastIndexAny(candidate, "}]"); end != -1 {
				candidate = candidate[:end+1]
			}
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate)
			}
		}
	}
	return nil
}

// estimateTokens approximates input tokens at ~4 characters per token.
func estimateTokens(messages []llm.Message) uint64 {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	if total == 0 {
		total = 10
	}
	return uint64(total)
}

// translateError classifies a gollm error by message content; gollm does
// not expose structured status codes.
func (p *Provider) translateError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return &llm.AuthenticationError{ProviderError: llm.ProviderError{
			SDKError: llm.SDKError{Message: msg, Cause: err}, Provider: p.provider, StatusCode: 401,
		}}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return &llm.RateLimitError{ProviderError: llm.ProviderError{
			SDKError: llm.SDKError{Message: msg, Cause: err}, Provider: p.provider, StatusCode: 429, Retryable: true,
		}}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		return &llm.ContextLengthError{ProviderError: llm.ProviderError{
			SDKError: llm.SDKError{Message: msg, Cause: err}, Provider: p.provider, StatusCode: 413,
		}}
	case strings.Contains(lower, "500") || strings.Contains(lower, "internal server"):
		return &llm.ServerError{ProviderError: llm.ProviderError{
			SDKError: llm.SDKError{Message: msg, Cause: err}, Provider: p.provider, StatusCode: 500, Retryable: true,
		}}
	case strings.Contains(lower, "timeout"):
		return &llm.RequestTimeoutError{SDKError: llm.SDKError{Message: msg, Cause: err}}
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "safety"):
		return &llm.ContentFilterError{ProviderError: llm.ProviderError{
			SDKError: llm.SDKError{Message: msg, Cause: err}, Provider: p.provider,
		}}
	default:
		return &llm.ProviderError{
			SDKError:  llm.SDKError{Message: msg, Cause: err},
			Provider:  p.provider,
			Retryable: true,
		}
	}
}
