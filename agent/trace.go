package agent

import (
	"time"

	"github.com/saltpond/drover/llm"
)

// TraceKind discriminates the two trace entry variants.
type TraceKind string

const (
	TraceLLMCall       TraceKind = "llm_call"
	TraceToolExecution TraceKind = "tool_execution"
)

// ExecStatus classifies the outcome of one tool execution.
type ExecStatus string

const (
	StatusSuccess   ExecStatus = "success"
	StatusError     ExecStatus = "error"
	StatusNotFound  ExecStatus = "not_found"
	StatusCancelled ExecStatus = "cancelled"
)

// TraceEntry is one record in a Session's append-only trace. Exactly one of
// LLMCall and Tool is set, according to Kind.
type TraceEntry struct {
	Kind      TraceKind           `json:"kind"`
	Timestamp time.Time           `json:"timestamp"`
	LLMCall   *LLMCallTrace       `json:"llm_call,omitempty"`
	Tool      *ToolExecutionTrace `json:"tool_execution,omitempty"`
}

// LLMCallTrace records one provider round-trip.
type LLMCallTrace struct {
	Model         string         `json:"model"`
	Usage         llm.TokenUsage `json:"usage"`
	ToolCallCount int            `json:"tool_call_count"`
	DurationMs    int64          `json:"duration_ms"`
}

// ToolExecutionTrace records one tool invocation, successful or not.
type ToolExecutionTrace struct {
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Status     ExecStatus     `json:"status"`
	Result     string         `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// Failed reports whether the entry records an unsuccessful tool execution.
func (e TraceEntry) Failed() bool {
	return e.Kind == TraceToolExecution && e.Tool != nil && e.Tool.Status != StatusSuccess
}

// Content returns the text carried back to the model as the tool-result
// message for this execution.
func (t *ToolExecutionTrace) Content() string {
	switch t.Status {
	case StatusSuccess:
		return t.Result
	case StatusNotFound:
		return "Tool not found: " + t.ToolName
	case StatusCancelled:
		return "Tool execution cancelled: " + t.ToolName
	default:
		return "Error executing " + t.ToolName + ": " + t.Error
	}
}

func newLLMCallEntry(model string, usage llm.TokenUsage, toolCalls int, elapsed time.Duration) TraceEntry {
	return TraceEntry{
		Kind:      TraceLLMCall,
		Timestamp: time.Now(),
		LLMCall: &LLMCallTrace{
			Model:         model,
			Usage:         usage,
			ToolCallCount: toolCalls,
			DurationMs:    elapsed.Milliseconds(),
		},
	}
}
