package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/saltpond/drover/llm"
)

// scriptedProvider replays a fixed sequence of responses. With repeat set,
// the last response is returned forever, which models a backend that never
// stops requesting tools.
type scriptedProvider struct {
	model     string
	responses []*llm.Response
	repeat    bool
	err       error

	calls     int
	seenTools [][]llm.ToolSchema
}

func (p *scriptedProvider) Complete(_ context.Context, _ []llm.Message, tools []llm.ToolSchema) (*llm.Response, error) {
	p.calls++
	p.seenTools = append(p.seenTools, tools)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return nil, errors.New("scripted provider exhausted")
	}
	resp := p.responses[0]
	if !p.repeat || len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return resp, nil
}

func (p *scriptedProvider) StructuredComplete(context.Context, []llm.Message, map[string]any) (json.RawMessage, error) {
	return nil, errors.New("not scripted")
}

func (p *scriptedProvider) Model() string {
	if p.model == "" {
		return "scripted-model"
	}
	return p.model
}

func toolCallResponse(calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{
		ToolCalls: calls,
		Usage:     llm.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		Content: text,
		Usage:   llm.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}
}

func addRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	r := NewToolRegistry()
	if err := r.AddFunc("add", "Add two integers.", addFunc); err != nil {
		t.Fatalf("AddFunc failed: %v", err)
	}
	return r
}

func TestRunToolCallThenAnswer(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse(llm.ToolCall{
			ID:        "call_1",
			Name:      "add",
			Arguments: map[string]any{"a": float64(2), "b": float64(2)},
		}),
		textResponse("4"),
	}}

	loop, err := New(provider, addRegistry(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result, err := loop.Run(context.Background(), "what is 2+2")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2", provider.calls)
	}
	if result.Output != "4" {
		t.Errorf("output = %q, want 4", result.Output)
	}
	if result.BudgetExhausted {
		t.Error("run finished normally, BudgetExhausted should be false")
	}

	execs := result.Session.ToolExecutions()
	if len(execs) != 1 {
		t.Fatalf("tool executions = %d, want 1", len(execs))
	}
	if execs[0].ToolName != "add" || execs[0].Status != StatusSuccess {
		t.Errorf("trace = %+v", execs[0])
	}
	if execs[0].Result != "4" {
		t.Errorf("trace result = %q, want 4", execs[0].Result)
	}
}

func TestRunUnknownToolContinues(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse(llm.ToolCall{ID: "call_1", Name: "subtract", Arguments: map[string]any{}}),
		textResponse("done"),
	}}

	loop, err := New(provider, addRegistry(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var errorFires int
	_ = loop.On(EventOnError, func(s *Session) error {
		errorFires++
		if s.PendingTool == nil || s.PendingTool.Name != "subtract" {
			t.Errorf("on_error pending tool = %+v", s.PendingTool)
		}
		return nil
	})

	result, err := loop.Run(context.Background(), "subtract something")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Output != "done" {
		t.Errorf("output = %q, want done", result.Output)
	}
	if errorFires != 1 {
		t.Errorf("on_error fired %d times, want 1", errorFires)
	}

	execs := result.Session.ToolExecutions()
	if len(execs) != 1 || execs[0].Status != StatusNotFound {
		t.Fatalf("trace = %+v, want one not_found entry", execs)
	}

	// The failure is surfaced to the model as a tool message.
	var toolMsg *llm.Message
	for i := range result.Session.Messages {
		if result.Session.Messages[i].Role == llm.RoleTool {
			toolMsg = &result.Session.Messages[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("no role=tool message appended for the failed call")
	}
	if toolMsg.ToolCallID != "call_1" {
		t.Errorf("tool_call_id = %q, want call_1", toolMsg.ToolCallID)
	}
	if toolMsg.Content != "Tool not found: subtract" {
		t.Errorf("tool message content = %q", toolMsg.Content)
	}
}

func TestRunBudgetExhausted(t *testing.T) {
	provider := &scriptedProvider{
		repeat: true,
		responses: []*llm.Response{
			toolCallResponse(llm.ToolCall{
				ID:        "call_loop",
				Name:      "add",
				Arguments: map[string]any{"a": float64(1), "b": float64(1)},
			}),
		},
	}

	loop, err := New(provider, addRegistry(t), WithMaxIterations(1))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result, err := loop.Run(context.Background(), "never finishes")
	if err != nil {
		t.Fatalf("budget exhaustion must not be an error: %v", err)
	}

	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want exactly 1", provider.calls)
	}
	if !result.BudgetExhausted || !result.Session.BudgetExhausted {
		t.Error("BudgetExhausted not set")
	}
	if result.Output != "iteration limit reached" {
		t.Errorf("output = %q, want the sentinel", result.Output)
	}
}

func TestRunBudgetExhaustedKeepsLastText(t *testing.T) {
	// The assistant wrote text alongside its tool calls; that text is the
	// best available answer when the budget runs out.
	provider := &scriptedProvider{
		repeat: true,
		responses: []*llm.Response{{
			Content: "working on it",
			ToolCalls: []llm.ToolCall{{
				ID:        "call_loop",
				Name:      "add",
				Arguments: map[string]any{"a": float64(1), "b": float64(1)},
			}},
		}},
	}

	loop, err := New(provider, addRegistry(t), WithMaxIterations(2))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result, err := loop.Run(context.Background(), "never finishes")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2", provider.calls)
	}
	if result.Output != "working on it" {
		t.Errorf("output = %q, want last assistant text", result.Output)
	}
}

func TestRunBatchOrdering(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse(
			llm.ToolCall{ID: "call_a", Name: "add", Arguments: map[string]any{"a": float64(1), "b": float64(1)}},
			llm.ToolCall{ID: "call_b", Name: "add", Arguments: map[string]any{"a": float64(2), "b": float64(2)}},
			llm.ToolCall{ID: "call_c", Name: "add", Arguments: map[string]any{"a": float64(3), "b": float64(3)}},
		),
		textResponse("done"),
	}}

	loop, err := New(provider, addRegistry(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result, err := loop.Run(context.Background(), "batch")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The assistant message with tool calls is immediately followed by
	// one role=tool message per call, ids round-tripping in order.
	msgs := result.Session.Messages
	var assistantIdx = -1
	for i, m := range msgs {
		if m.Role == llm.RoleAssistant && len(m.ToolCalls) == 3 {
			assistantIdx = i
			break
		}
	}
	if assistantIdx < 0 {
		t.Fatalf("no assistant message with 3 tool calls: %+v", msgs)
	}
	wantIDs := []string{"call_a", "call_b", "call_c"}
	for i, id := range wantIDs {
		m := msgs[assistantIdx+1+i]
		if m.Role != llm.RoleTool {
			t.Fatalf("message %d role = %q, want tool", assistantIdx+1+i, m.Role)
		}
		if m.ToolCallID != id {
			t.Errorf("tool message %d id = %q, want %q", i, m.ToolCallID, id)
		}
	}

	results := []string{"2", "4", "6"}
	for i, exec := range result.Session.ToolExecutions() {
		if exec.Result != results[i] {
			t.Errorf("execution %d result = %q, want %q", i, exec.Result, results[i])
		}
	}
}

func TestRunEventFiringCounts(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse(llm.ToolCall{
			ID:        "call_1",
			Name:      "add",
			Arguments: map[string]any{"a": float64(2), "b": float64(2)},
		}),
		textResponse("4"),
	}}

	loop, err := New(provider, addRegistry(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	counts := map[EventType]int{}
	for _, ev := range []EventType{
		EventAfterUserInput, EventBeforeLLM, EventAfterLLM,
		EventBeforeTool, EventAfterTool, EventAfterTools,
		EventOnError, EventOnComplete,
	} {
		ev := ev
		if err := loop.On(ev, func(*Session) error {
			counts[ev]++
			return nil
		}); err != nil {
			t.Fatalf("On(%s) failed: %v", ev, err)
		}
	}

	if _, err := loop.Run(context.Background(), "what is 2+2"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := map[EventType]int{
		EventAfterUserInput: 1,
		EventBeforeLLM:      2,
		EventAfterLLM:       2,
		EventBeforeTool:     1,
		EventAfterTool:      1,
		EventAfterTools:     1,
		EventOnError:        0,
		EventOnComplete:     1,
	}
	for ev, n := range want {
		if counts[ev] != n {
			t.Errorf("%s fired %d times, want %d", ev, counts[ev], n)
		}
	}
}

func TestRunApprovalDenied(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse(llm.ToolCall{
			ID:        "call_1",
			Name:      "add",
			Arguments: map[string]any{"a": float64(2), "b": float64(2)},
		}),
		textResponse("understood"),
	}}

	loop, err := New(provider, addRegistry(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_ = loop.On(EventBeforeTool, func(*Session) error {
		return &ApprovalDenied{Feedback: "arithmetic requires sign-off"}
	})
	var errorFires int
	_ = loop.On(EventOnError, func(*Session) error { errorFires++; return nil })

	result, err := loop.Run(context.Background(), "what is 2+2")
	if err != nil {
		t.Fatalf("a veto must not abort the run: %v", err)
	}
	if result.Output != "understood" {
		t.Errorf("output = %q", result.Output)
	}
	if errorFires != 1 {
		t.Errorf("on_error fired %d times, want 1", errorFires)
	}

	execs := result.Session.ToolExecutions()
	if len(execs) != 1 || execs[0].Status != StatusError {
		t.Fatalf("trace = %+v, want one error entry", execs)
	}

	// The feedback reaches the model through the tool message.
	found := false
	for _, m := range result.Session.Messages {
		if m.Role == llm.RoleTool && m.ToolCallID == "call_1" {
			found = true
			if !strings.Contains(m.Content, "arithmetic requires sign-off") {
				t.Errorf("tool message content = %q, want the veto feedback", m.Content)
			}
		}
	}
	if !found {
		t.Error("no tool message for the denied call")
	}
}

func TestRunBeforeToolRewrite(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse(llm.ToolCall{
			ID:        "call_1",
			Name:      "add",
			Arguments: map[string]any{"a": float64(1), "b": float64(1)},
		}),
		textResponse("done"),
	}}

	loop, err := New(provider, addRegistry(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_ = loop.On(EventBeforeTool, func(s *Session) error {
		s.PendingTool.Arguments = map[string]any{"a": float64(40), "b": float64(2)}
		return nil
	})

	result, err := loop.Run(context.Background(), "rewrite")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	execs := result.Session.ToolExecutions()
	if len(execs) != 1 || execs[0].Result != "42" {
		t.Fatalf("trace = %+v, want rewritten arguments applied", execs)
	}
}

func TestRunEventCallbackFatal(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{textResponse("never seen")}}

	loop, err := New(provider, addRegistry(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	boom := errors.New("invariant violated")
	_ = loop.On(EventBeforeLLM, func(*Session) error { return boom })

	result, err := loop.Run(context.Background(), "fail fast")
	if err == nil {
		t.Fatal("callback error must abort the run")
	}
	var evErr *EventError
	if !errors.As(err, &evErr) {
		t.Fatalf("error type = %T, want *EventError", err)
	}
	if evErr.Event != EventBeforeLLM {
		t.Errorf("event = %s, want before_llm", evErr.Event)
	}
	if !errors.Is(err, boom) {
		t.Error("EventError must wrap the callback error")
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times despite before_llm failure", provider.calls)
	}
	if result == nil || result.Session == nil {
		t.Error("failed run should still hand back the session")
	}
}

func TestRunProviderErrorPropagates(t *testing.T) {
	boom := &llm.ServerError{ProviderError: llm.ProviderError{
		SDKError:   llm.SDKError{Message: "upstream down"},
		Provider:   "scripted",
		StatusCode: 503,
	}}
	provider := &scriptedProvider{err: boom}

	loop, err := New(provider, addRegistry(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = loop.Run(context.Background(), "anything")
	if err == nil {
		t.Fatal("provider error must propagate")
	}
	var srv *llm.ServerError
	if !errors.As(err, &srv) {
		t.Errorf("error = %T, want the provider error unmodified", err)
	}
}

func TestRunSystemPrompt(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{textResponse("hi")}}

	loop, err := New(provider, nil, WithSystemPrompt("You are terse."))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result, err := loop.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	msgs := result.Session.Messages
	if len(msgs) < 2 || msgs[0].Role != llm.RoleSystem || msgs[0].Content != "You are terse." {
		t.Fatalf("messages = %+v, want leading system message", msgs)
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Content != "hello" {
		t.Errorf("second message = %+v, want the user prompt", msgs[1])
	}
}

func TestRunFreshSessionPerCall(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		textResponse("one"),
		textResponse("two"),
	}}

	loop, err := New(provider, addRegistry(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first, err := loop.Run(context.Background(), "first")
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	second, err := loop.Run(context.Background(), "second")
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if first.Session.ID == second.Session.ID {
		t.Error("sessions must not be shared across runs")
	}
	if len(second.Session.Messages) != 2 {
		t.Errorf("second session has %d messages, want a fresh history of 2", len(second.Session.Messages))
	}
}

func TestRunCancelledDuringTools(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r := NewToolRegistry()
	if err := r.AddFunc("stop", "", func() (string, error) {
		cancel()
		return "stopping", nil
	}); err != nil {
		t.Fatalf("AddFunc failed: %v", err)
	}
	if err := r.AddFunc("never", "", func() (string, error) {
		return "must not run", nil
	}); err != nil {
		t.Fatalf("AddFunc failed: %v", err)
	}

	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse(
			llm.ToolCall{ID: "c1", Name: "stop", Arguments: map[string]any{}},
			llm.ToolCall{ID: "c2", Name: "never", Arguments: map[string]any{}},
		),
	}}

	loop, err := New(provider, r)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result, err := loop.Run(ctx, "cancel mid-batch")
	if err == nil {
		t.Fatal("cancellation must surface as an error")
	}
	var abort *llm.AbortError
	if !errors.As(err, &abort) {
		t.Errorf("error type = %T, want *llm.AbortError", err)
	}

	execs := result.Session.ToolExecutions()
	if len(execs) != 2 {
		t.Fatalf("executions = %d, want 2 (stop ran, never was cancelled)", len(execs))
	}
	if execs[1].Status != StatusCancelled {
		t.Errorf("second execution status = %q, want cancelled", execs[1].Status)
	}
}

func TestRunUsageAggregation(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse(llm.ToolCall{
			ID:        "call_1",
			Name:      "add",
			Arguments: map[string]any{"a": float64(2), "b": float64(2)},
		}),
		textResponse("4"),
	}}

	loop, err := New(provider, addRegistry(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result, err := loop.Run(context.Background(), "what is 2+2")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	usage := result.Session.Usage()
	if usage.InputTokens != 20 || usage.OutputTokens != 10 {
		t.Errorf("usage = %+v, want sums over both calls", usage)
	}
}
