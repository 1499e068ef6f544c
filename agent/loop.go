package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/saltpond/drover/llm"
	"github.com/saltpond/drover/observe"
)

// DefaultMaxIterations bounds backend round-trips per Run when no explicit
// budget is configured.
const DefaultMaxIterations = 10

// budgetExhaustedOutput is returned as the run output when the iteration
// budget runs out and no assistant message carried any text.
const budgetExhaustedOutput = "iteration limit reached"

// AgentLoop drives the request/execute/respond cycle: send the
// conversation to the provider, execute requested tool calls, feed the
// results back, repeat. Each Run gets a fresh Session; an AgentLoop may be
// reused across runs but must not serve concurrent runs when its tools
// mutate shared instance state.
type AgentLoop struct {
	provider      llm.Provider
	registry      *ToolRegistry
	pipeline      *EventPipeline
	executor      *ToolExecutor
	maxIterations uint
	systemPrompt  string
	logger        *slog.Logger
	metrics       *observe.Metrics
}

// Option configures an AgentLoop.
type Option func(*AgentLoop)

// WithMaxIterations sets the backend round-trip budget per Run.
func WithMaxIterations(n uint) Option {
	return func(l *AgentLoop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithSystemPrompt prepends a system message to every Run's conversation.
func WithSystemPrompt(prompt string) Option {
	return func(l *AgentLoop) { l.systemPrompt = prompt }
}

// WithPipeline replaces the loop's event pipeline.
func WithPipeline(p *EventPipeline) Option {
	return func(l *AgentLoop) {
		if p != nil {
			l.pipeline = p
		}
	}
}

// WithInterceptor attaches a tool-execution interceptor.
func WithInterceptor(i Interceptor) Option {
	return func(l *AgentLoop) { l.executor.Interceptor = i }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *AgentLoop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics attaches metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *AgentLoop) { l.metrics = m }
}

// New creates an AgentLoop over the given provider and registry. A nil
// registry gets an empty one, so tool-less loops work out of the box.
func New(provider llm.Provider, registry *ToolRegistry, opts ...Option) (*AgentLoop, error) {
	if provider == nil {
		return nil, llm.NewConfigurationError("agent loop requires a provider")
	}
	if registry == nil {
		registry = NewToolRegistry()
	}
	l := &AgentLoop{
		provider:      provider,
		registry:      registry,
		pipeline:      NewEventPipeline(),
		executor:      &ToolExecutor{},
		maxIterations: DefaultMaxIterations,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.executor.Metrics = l.metrics
	l.executor.Logger = l.logger
	return l, nil
}

// Registry returns the loop's tool registry.
func (l *AgentLoop) Registry() *ToolRegistry { return l.registry }

// Pipeline returns the loop's event pipeline.
func (l *AgentLoop) Pipeline() *EventPipeline { return l.pipeline }

// On registers an event callback on the loop's pipeline.
func (l *AgentLoop) On(event EventType, cb Callback) error {
	return l.pipeline.Register(event, cb)
}

// RunResult is the outcome of one Run. On error the result still carries
// the partially-built Session for inspection.
type RunResult struct {
	// Output is the final answer: the model's closing text, or the last
	// assistant text (else a fixed sentinel) when the budget ran out.
	Output string

	// Session holds the full conversation and trace of the run.
	Session *Session

	// BudgetExhausted mirrors Session.BudgetExhausted.
	BudgetExhausted bool
}

// Run executes one full agent conversation for the given prompt.
//
// Provider errors and event-callback errors abort the run and propagate;
// tool failures do not, they are surfaced to the model as tool-result
// messages so it can recover within the conversation. Hitting the
// iteration budget is a normal terminal state, reported via
// RunResult.BudgetExhausted rather than an error.
func (l *AgentLoop) Run(ctx context.Context, prompt string) (*RunResult, error) {
	s := newSession(prompt, l.maxIterations)
	l.logger.Info("run started", "session_id", s.ID, "max_iterations", s.MaxIterations)

	if l.systemPrompt != "" {
		s.append(llm.SystemMessage(l.systemPrompt))
	}
	s.append(llm.UserMessage(prompt))
	if err := l.fire(EventAfterUserInput, s); err != nil {
		return l.fail(ctx, s, err)
	}

	for s.Iteration < s.MaxIterations {
		if err := l.fire(EventBeforeLLM, s); err != nil {
			return l.fail(ctx, s, err)
		}

		start := time.Now()
		resp, err := l.provider.Complete(ctx, s.Messages, l.registry.Schemas())
		elapsed := time.Since(start)
		if err != nil {
			l.metrics.RecordLLMCall(ctx, l.provider.Model(), "error", elapsed.Seconds())
			l.logger.Error("provider call failed", "session_id", s.ID, "error", err)
			return l.fail(ctx, s, err)
		}
		l.metrics.RecordLLMCall(ctx, l.provider.Model(), "success", elapsed.Seconds())

		s.appendTrace(newLLMCallEntry(l.provider.Model(), resp.Usage, len(resp.ToolCalls), elapsed))
		s.append(resp.AssistantMessage())
		s.Iteration++

		if err := l.fire(EventAfterLLM, s); err != nil {
			return l.fail(ctx, s, err)
		}

		if !resp.HasToolCalls() {
			if err := l.fire(EventOnComplete, s); err != nil {
				return l.fail(ctx, s, err)
			}
			l.metrics.RecordRun(ctx, "done")
			l.logger.Info("run complete", "session_id", s.ID, "iterations", s.Iteration)
			return &RunResult{Output: resp.Content, Session: s}, nil
		}

		if err := l.executeBatch(ctx, s, resp.ToolCalls); err != nil {
			return l.fail(ctx, s, err)
		}

		if err := l.fire(EventAfterTools, s); err != nil {
			return l.fail(ctx, s, err)
		}
	}

	s.BudgetExhausted = true
	output := s.LastAssistantText()
	if output == "" {
		output = budgetExhaustedOutput
	}
	if err := l.fire(EventOnComplete, s); err != nil {
		return l.fail(ctx, s, err)
	}
	l.metrics.RecordRun(ctx, "budget_exhausted")
	l.logger.Warn("iteration budget exhausted", "session_id", s.ID, "iterations", s.Iteration)
	return &RunResult{Output: output, Session: s, BudgetExhausted: true}, nil
}

// executeBatch runs one turn's tool calls strictly in the order the
// backend returned them. Later calls may depend on state an earlier call
// just mutated, and some providers require tool results in request order.
func (l *AgentLoop) executeBatch(ctx context.Context, s *Session, calls []llm.ToolCall) error {
	for i := range calls {
		call := calls[i]
		s.PendingTool = &call

		var entry TraceEntry
		if err := l.pipeline.fire(EventBeforeTool, s); err != nil {
			var denied *ApprovalDenied
			if !errors.As(err, &denied) {
				s.PendingTool = nil
				return &EventError{Event: EventBeforeTool, Err: err}
			}
			entry = deniedEntry(*s.PendingTool, denied)
			l.logger.Info("tool call denied",
				"session_id", s.ID, "tool", s.PendingTool.Name, "feedback", denied.Feedback)
		} else {
			// before_tool may have rewritten the pending call.
			entry = l.executor.Execute(ctx, *s.PendingTool, l.registry)
		}

		s.appendTrace(entry)
		s.append(llm.ToolResultMessage(s.PendingTool.ID, entry.Tool.Content()))

		if err := l.fire(EventAfterTool, s); err != nil {
			s.PendingTool = nil
			return err
		}
		if entry.Failed() {
			if err := l.fire(EventOnError, s); err != nil {
				s.PendingTool = nil
				return err
			}
		}
		s.PendingTool = nil

		if entry.Tool.Status == StatusCancelled {
			return &llm.AbortError{SDKError: llm.SDKError{
				Message: "run cancelled during tool execution",
				Cause:   ctx.Err(),
			}}
		}
	}
	return nil
}

// fire invokes an event and wraps any callback error as a fatal
// EventError.
func (l *AgentLoop) fire(event EventType, s *Session) error {
	if err := l.pipeline.fire(event, s); err != nil {
		return &EventError{Event: event, Err: err}
	}
	return nil
}

// fail records the failed outcome and hands the partial session back with
// the error.
func (l *AgentLoop) fail(ctx context.Context, s *Session, err error) (*RunResult, error) {
	l.metrics.RecordRun(ctx, "failed")
	return &RunResult{Session: s}, err
}

func deniedEntry(call llm.ToolCall, denied *ApprovalDenied) TraceEntry {
	return TraceEntry{
		Kind:      TraceToolExecution,
		Timestamp: time.Now(),
		Tool: &ToolExecutionTrace{
			ToolName:  call.Name,
			Arguments: call.Arguments,
			Status:    StatusError,
			Error:     denied.Error(),
		},
	}
}
