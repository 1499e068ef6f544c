package agent

import (
	"errors"
	"testing"

	"github.com/saltpond/drover/llm"
)

func TestPipelineRegistrationOrder(t *testing.T) {
	p := NewEventPipeline()
	var order []int
	for i := 1; i <= 5; i++ {
		n := i
		if err := p.Register(EventBeforeLLM, func(*Session) error {
			order = append(order, n)
			return nil
		}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	// Every firing replays the exact registration order.
	for round := 0; round < 3; round++ {
		order = order[:0]
		if err := p.fire(EventBeforeLLM, &Session{}); err != nil {
			t.Fatalf("fire failed: %v", err)
		}
		for i, n := range order {
			if n != i+1 {
				t.Fatalf("round %d: order = %v", round, order)
			}
		}
		if len(order) != 5 {
			t.Fatalf("round %d: fired %d callbacks, want 5", round, len(order))
		}
	}
}

func TestPipelineUnknownEvent(t *testing.T) {
	p := NewEventPipeline()
	err := p.Register(EventType("before_everything"), func(*Session) error { return nil })
	if err == nil {
		t.Fatal("unknown event type must fail registration")
	}
	var cfg *llm.ConfigurationError
	if !errors.As(err, &cfg) {
		t.Errorf("error type = %T, want *llm.ConfigurationError", err)
	}
}

func TestPipelineNilCallback(t *testing.T) {
	p := NewEventPipeline()
	if err := p.Register(EventOnComplete, nil); err == nil {
		t.Fatal("nil callback must fail registration")
	}
}

func TestPipelineStopsAtFirstError(t *testing.T) {
	p := NewEventPipeline()
	boom := errors.New("boom")
	var reached bool
	_ = p.Register(EventAfterLLM, func(*Session) error { return boom })
	_ = p.Register(EventAfterLLM, func(*Session) error { reached = true; return nil })

	err := p.fire(EventAfterLLM, &Session{})
	if !errors.Is(err, boom) {
		t.Fatalf("fire error = %v, want boom", err)
	}
	if reached {
		t.Error("callback after the failing one must not run")
	}
}

func TestEventErrorUnwrap(t *testing.T) {
	boom := errors.New("boom")
	err := &EventError{Event: EventBeforeTool, Err: boom}
	if !errors.Is(err, boom) {
		t.Error("EventError must unwrap to its cause")
	}
	if err.Error() == "" {
		t.Error("empty error message")
	}
}

func TestApprovalDeniedMessage(t *testing.T) {
	var err error = &ApprovalDenied{Feedback: "writes outside the sandbox"}
	if err.Error() != "tool call denied: writes outside the sandbox" {
		t.Errorf("message = %q", err.Error())
	}
	if (&ApprovalDenied{}).Error() != "tool call denied" {
		t.Errorf("empty feedback message = %q", (&ApprovalDenied{}).Error())
	}
}
