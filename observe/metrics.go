// Package observe provides OpenTelemetry metric instruments for the agent
// engine: provider round-trip latency, tool execution latency, and call
// counters.
//
// A nil *Metrics is valid and records nothing, so the engine works without
// a configured meter provider. Tests should construct Metrics from an
// sdk/metric ManualReader-backed provider rather than the global one.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all engine metrics.
const meterName = "github.com/saltpond/drover"

// latencyBuckets defines histogram bucket boundaries in seconds, sized for
// LLM round-trips (slow tail) and tool executions (fast head).
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// Metrics holds all metric instruments for the engine.
type Metrics struct {
	// LLMDuration tracks provider Complete/StructuredComplete latency.
	LLMDuration metric.Float64Histogram

	// ToolDuration tracks individual tool execution latency.
	ToolDuration metric.Float64Histogram

	// ProviderRequests counts provider calls by model and status.
	ProviderRequests metric.Int64Counter

	// ToolCalls counts tool executions by tool and status.
	ToolCalls metric.Int64Counter

	// Runs counts agent loop runs by outcome.
	Runs metric.Int64Counter
}

// New creates a fully initialised Metrics using the given meter provider.
func New(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.LLMDuration, err = meter.Float64Histogram("drover.llm.duration",
		metric.WithDescription("Latency of provider chat-completion calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if m.ToolDuration, err = meter.Float64Histogram("drover.tool.duration",
		metric.WithDescription("Latency of individual tool executions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if m.ProviderRequests, err = meter.Int64Counter("drover.provider.requests",
		metric.WithDescription("Provider API calls by model and status."),
	); err != nil {
		return nil, err
	}
	if m.ToolCalls, err = meter.Int64Counter("drover.tool.calls",
		metric.WithDescription("Tool executions by tool name and status."),
	); err != nil {
		return nil, err
	}
	if m.Runs, err = meter.Int64Counter("drover.runs",
		metric.WithDescription("Agent loop runs by outcome."),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordLLMCall records one provider round-trip.
func (m *Metrics) RecordLLMCall(ctx context.Context, model, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", status),
	)
	m.LLMDuration.Record(ctx, seconds, attrs)
	m.ProviderRequests.Add(ctx, 1, attrs)
}

// RecordToolCall records one tool execution.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolDuration.Record(ctx, seconds, attrs)
	m.ToolCalls.Add(ctx, 1, attrs)
}

// RecordRun records one completed agent loop run.
func (m *Metrics) RecordRun(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
