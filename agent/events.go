package agent

import (
	"fmt"

	"github.com/saltpond/drover/llm"
)

// EventType names one of the eight fixed lifecycle points of a run.
type EventType string

const (
	// EventAfterUserInput fires exactly once per Run, after the user
	// message is appended.
	EventAfterUserInput EventType = "after_user_input"

	// EventBeforeLLM and EventAfterLLM fire once per backend round-trip.
	EventBeforeLLM EventType = "before_llm"
	EventAfterLLM  EventType = "after_llm"

	// EventBeforeTool and EventAfterTool fire once per individual tool
	// call. Callbacks may read and rewrite Session.PendingTool; a
	// before_tool callback may veto the call by returning ApprovalDenied.
	EventBeforeTool EventType = "before_tool"
	EventAfterTool  EventType = "after_tool"

	// EventAfterTools fires once per batch, after every tool-result
	// message for the turn has been appended. This is the only point
	// where appending new messages is safe: providers that require tool
	// results to immediately follow the requesting assistant message
	// would reject messages interleaved earlier.
	EventAfterTools EventType = "after_tools"

	// EventOnError fires once per failed or not-found tool execution, in
	// addition to after_tool.
	EventOnError EventType = "on_error"

	// EventOnComplete fires exactly once per Run, after the final answer
	// is recorded.
	EventOnComplete EventType = "on_complete"
)

var knownEvents = map[EventType]bool{
	EventAfterUserInput: true,
	EventBeforeLLM:      true,
	EventAfterLLM:       true,
	EventBeforeTool:     true,
	EventAfterTool:      true,
	EventAfterTools:     true,
	EventOnError:        true,
	EventOnComplete:     true,
}

// Callback observes or mutates the session at a lifecycle point. A non-nil
// error aborts the run, except an ApprovalDenied returned from before_tool,
// which vetoes only the pending tool call.
type Callback func(s *Session) error

// EventError wraps a callback failure. It is always fatal to the run;
// callbacks encode embedder invariants that must not be silently dropped.
type EventError struct {
	Event EventType
	Err   error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event callback failed at %s: %v", e.Event, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }

// ApprovalDenied is returned by a before_tool callback to veto the pending
// tool call. The feedback is delivered to the model as the tool result, and
// the run continues.
type ApprovalDenied struct {
	Feedback string
}

func (e *ApprovalDenied) Error() string {
	if e.Feedback == "" {
		return "tool call denied"
	}
	return "tool call denied: " + e.Feedback
}

// EventPipeline is an ordered callback registry over the fixed event types.
// Callbacks for one event fire strictly in registration order.
type EventPipeline struct {
	callbacks map[EventType][]Callback
}

// NewEventPipeline creates an empty pipeline.
func NewEventPipeline() *EventPipeline {
	return &EventPipeline{callbacks: make(map[EventType][]Callback)}
}

// Register appends a callback for the given event. Registering an unknown
// event type is a configuration error.
func (p *EventPipeline) Register(event EventType, cb Callback) error {
	if !knownEvents[event] {
		return llm.NewConfigurationError("unknown event type %q", event)
	}
	if cb == nil {
		return llm.NewConfigurationError("nil callback registered for %s", event)
	}
	p.callbacks[event] = append(p.callbacks[event], cb)
	return nil
}

// Len returns the number of callbacks registered for an event.
func (p *EventPipeline) Len(event EventType) int {
	return len(p.callbacks[event])
}

// fire invokes the event's callbacks in registration order. The first
// error stops the firing and is returned to the loop unwrapped, so the
// caller can distinguish an ApprovalDenied veto from a fatal failure.
func (p *EventPipeline) fire(event EventType, s *Session) error {
	for _, cb := range p.callbacks[event] {
		if err := cb(s); err != nil {
			return err
		}
	}
	return nil
}
