package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/saltpond/drover/llm"
	"github.com/saltpond/drover/observe"
)

// Interceptor observes tool executions around the invocation itself. It is
// a debugging and instrumentation hook; a nil Interceptor costs nothing.
type Interceptor interface {
	BeforeInvoke(ctx context.Context, call llm.ToolCall)
	AfterInvoke(ctx context.Context, call llm.ToolCall, entry *TraceEntry)
}

// ToolExecutor invokes tools defensively. Every Execute call returns a
// TraceEntry with a definite status; a missing tool, a returned error, a
// panicking tool, or a cancelled context all become trace entries rather
// than escaping to the caller.
type ToolExecutor struct {
	Interceptor Interceptor
	Metrics     *observe.Metrics
	Logger      *slog.Logger
}

// Execute resolves and runs one tool call against the registry.
func (e *ToolExecutor) Execute(ctx context.Context, call llm.ToolCall, registry *ToolRegistry) TraceEntry {
	entry := TraceEntry{
		Kind:      TraceToolExecution,
		Timestamp: time.Now(),
		Tool: &ToolExecutionTrace{
			ToolName:  call.Name,
			Arguments: call.Arguments,
		},
	}

	if e.Interceptor != nil {
		e.Interceptor.BeforeInvoke(ctx, call)
	}

	start := time.Now()
	e.run(ctx, call, registry, entry.Tool)
	entry.Tool.DurationMs = time.Since(start).Milliseconds()

	if e.Metrics != nil {
		e.Metrics.RecordToolCall(ctx, call.Name, string(entry.Tool.Status), time.Since(start).Seconds())
	}
	if e.Logger != nil {
		e.Logger.Debug("tool executed",
			"tool", call.Name,
			"status", string(entry.Tool.Status),
			"duration_ms", entry.Tool.DurationMs)
	}
	if e.Interceptor != nil {
		e.Interceptor.AfterInvoke(ctx, call, &entry)
	}
	return entry
}

// run fills in the status and result fields. Panics from tool
// implementations are recovered into error entries.
func (e *ToolExecutor) run(ctx context.Context, call llm.ToolCall, registry *ToolRegistry, t *ToolExecutionTrace) {
	if err := ctx.Err(); err != nil {
		t.Status = StatusCancelled
		t.Error = err.Error()
		return
	}

	tool, ok := registry.Get(call.Name)
	if !ok {
		t.Status = StatusNotFound
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.Status = StatusError
			t.Error = fmt.Sprintf("tool panicked: %v", r)
		}
	}()

	result, err := tool.Invoke(ctx, call.Arguments)
	if err != nil {
		if ctx.Err() != nil {
			t.Status = StatusCancelled
			t.Error = err.Error()
			return
		}
		t.Status = StatusError
		t.Error = err.Error()
		return
	}

	t.Status = StatusSuccess
	t.Result = stringify(result)
}

// stringify renders a tool's return value for the conversation. Strings
// pass through; everything else is JSON-encoded where possible.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case error:
		return val.Error()
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}
