// Package llm normalizes heterogeneous chat-completion backends into one
// canonical request/response shape so the agent loop never touches a
// provider SDK directly.
//
// The package defines the Provider contract (Complete, StructuredComplete,
// Model), the canonical Message/ToolCall/Response types, a typed error
// hierarchy, a Router that maps model names to registered backends, and a
// static price table used to derive a cost for every response.
//
// Backend implementations live in subpackages (llm/openai, llm/anthropic,
// llm/gollm). Each owns the translation between the canonical shapes and
// its wire format, including parsing raw tool-call argument JSON; a
// malformed payload from a backend is surfaced as InvalidToolCallError,
// never silently dropped.
//
// The engine performs no automatic retries. Callers that want retry with
// backoff wrap a Provider with Retry.
package llm
