// Package agent implements the tool-calling orchestration engine.
//
// An AgentLoop owns a ToolRegistry, an llm.Provider, and an EventPipeline.
// Each Run creates a fresh Session, sends the conversation to the backend,
// executes any tool calls the model requests, and repeats until the model
// answers in plain text or the iteration budget runs out.
//
// Tools are plain Go functions or methods on a shared instance, converted
// into schema-described Tool values at registration time by FromFunction and
// FromInstance. The ToolExecutor invokes tools defensively: every execution
// produces a TraceEntry, never a panic, so one misbehaving tool cannot take
// down a run.
//
// The EventPipeline exposes eight fixed lifecycle points where embedding
// code can observe or mutate the Session. Callback errors are fatal to the
// run; a before_tool callback may veto a pending tool call by returning an
// ApprovalDenied, which is surfaced to the model as a failed tool result
// instead of aborting the run.
package agent
