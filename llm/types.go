package llm

import (
	"context"
	"encoding/json"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation history.
//
// Ordering invariant: a RoleTool message's ToolCallID must reference a
// ToolCall emitted by the immediately preceding assistant message. Some
// backends (Anthropic in particular) reject histories that violate this.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message with text content.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolResultMessage creates the tool-result Message answering call id.
func ToolResultMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// ToolCall is one concrete invocation request emitted by a backend.
// ID correlates the call to its eventual RoleTool result message.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ParseArguments decodes a raw argument payload from a backend. The backend
// is assumed to emit valid JSON objects; anything else is a fatal
// InvalidToolCallError for the request that produced it.
func ParseArguments(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, &InvalidToolCallError{SDKError: SDKError{
			Message: "malformed tool call arguments: " + string(raw),
			Cause:   err,
		}}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// ToolSchema advertises one callable tool to a backend.
// Parameters follows the JSON-schema object convention:
//
//	{"type": "object", "properties": {...}, "required": [...]}
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// TokenUsage tracks token consumption for one backend round-trip.
// Cost is derived from the price table, never backend-supplied.
type TokenUsage struct {
	InputTokens      uint64  `json:"input_tokens"`
	OutputTokens     uint64  `json:"output_tokens"`
	CachedTokens     uint64  `json:"cached_tokens,omitempty"`
	CacheWriteTokens uint64  `json:"cache_write_tokens,omitempty"`
	Cost             float64 `json:"cost"`
}

// Add returns the element-wise sum of u and other. Costs add too.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:      u.InputTokens + other.InputTokens,
		OutputTokens:     u.OutputTokens + other.OutputTokens,
		CachedTokens:     u.CachedTokens + other.CachedTokens,
		CacheWriteTokens: u.CacheWriteTokens + other.CacheWriteTokens,
		Cost:             u.Cost + other.Cost,
	}
}

// Response is the canonical result of one Complete call.
//
// A response carrying tool calls conventionally has empty Content, but the
// abstraction does not force this; callers must check ToolCalls first.
type Response struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     TokenUsage `json:"usage"`
}

// HasToolCalls reports whether the backend requested any tool invocations.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// AssistantMessage converts the response into the history entry that
// requested its tool calls (or carried its final text).
func (r *Response) AssistantMessage() Message {
	return Message{
		Role:      RoleAssistant,
		Content:   r.Content,
		ToolCalls: r.ToolCalls,
	}
}

// Provider is the abstraction over one chat-completion backend.
//
// Implementations must be safe for concurrent use and must propagate
// context cancellation promptly. Construction requires an API credential;
// a missing credential is a construction-time ConfigurationError naming
// the expected source, never a silent fallback.
type Provider interface {
	// Complete sends the conversation plus tool schemas to the backend and
	// returns the normalized response. Generation statuses that mean
	// "incomplete" (refused, filtered, truncated) become typed errors
	// rather than responses with ambiguous empty fields.
	Complete(ctx context.Context, messages []Message, tools []ToolSchema) (*Response, error)

	// StructuredComplete performs a one-shot, schema-constrained extraction
	// with no tool loop, returning the raw JSON document produced by the
	// backend.
	StructuredComplete(ctx context.Context, messages []Message, schema map[string]any) (json.RawMessage, error)

	// Model returns the model identifier this provider is bound to.
	Model() string
}
