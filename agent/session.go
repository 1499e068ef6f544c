package agent

import (
	"github.com/google/uuid"

	"github.com/saltpond/drover/llm"
)

// Session is the mutable state of one Run: the conversation so far, the
// execution trace, and the loop counters. A Session is created fresh for
// every Run and is never shared across concurrent runs. Event callbacks
// receive the live Session and may mutate it; the field comments note which
// mutations are safe where.
type Session struct {
	// ID is a unique identifier for this run.
	ID string

	// UserPrompt is the prompt the run was started with.
	UserPrompt string

	// Messages is the ordered conversation history. Callbacks must only
	// append from after_tools (or after_user_input, before the first
	// backend call); appending between an assistant tool-call message and
	// its tool results breaks providers with strict ordering rules.
	Messages []llm.Message

	// Trace is the append-only execution log.
	Trace []TraceEntry

	// Iteration counts completed backend round-trips.
	Iteration uint

	// MaxIterations is the round-trip budget for this run.
	MaxIterations uint

	// PendingTool is the tool call about to execute. It is non-nil only
	// while before_tool, after_tool, and on_error fire; a before_tool
	// callback may rewrite it to alter the call.
	PendingTool *llm.ToolCall

	// BudgetExhausted is set when the run ended because Iteration reached
	// MaxIterations rather than because the model produced a final answer.
	BudgetExhausted bool
}

func newSession(prompt string, maxIterations uint) *Session {
	return &Session{
		ID:            uuid.New().String(),
		UserPrompt:    prompt,
		MaxIterations: maxIterations,
	}
}

func (s *Session) append(msg llm.Message) {
	s.Messages = append(s.Messages, msg)
}

func (s *Session) appendTrace(entry TraceEntry) {
	s.Trace = append(s.Trace, entry)
}

// LastAssistantText returns the content of the most recent assistant
// message that carried text, or "" if none did.
func (s *Session) LastAssistantText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == llm.RoleAssistant && m.Content != "" {
			return m.Content
		}
	}
	return ""
}

// Usage aggregates token usage and cost across every backend call in the
// trace.
func (s *Session) Usage() llm.TokenUsage {
	var total llm.TokenUsage
	for _, e := range s.Trace {
		if e.Kind == TraceLLMCall && e.LLMCall != nil {
			total = total.Add(e.LLMCall.Usage)
		}
	}
	return total
}

// ToolExecutions returns the tool-execution entries of the trace in order.
func (s *Session) ToolExecutions() []*ToolExecutionTrace {
	var out []*ToolExecutionTrace
	for _, e := range s.Trace {
		if e.Kind == TraceToolExecution && e.Tool != nil {
			out = append(out, e.Tool)
		}
	}
	return out
}
