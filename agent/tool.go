package agent

import (
	"context"

	"github.com/saltpond/drover/llm"
)

// Invoker is the runtime shape every Tool is reduced to: parsed arguments
// in, arbitrary result or error out.
type Invoker func(ctx context.Context, args map[string]any) (any, error)

// Tool is a callable capability advertised to the model. The parameter
// schema is derived once at construction and never mutated afterwards.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any

	invoke Invoker
}

// NewRawTool builds a Tool directly from an Invoker and a hand-written
// JSON-schema parameter object. Most callers should use FromFunction or
// FromInstance instead and let the schema be derived.
func NewRawTool(name, description string, parameters map[string]any, fn Invoker) Tool {
	if parameters == nil {
		parameters = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		invoke:      fn,
	}
}

// Invoke runs the tool with already-parsed arguments.
func (t Tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.invoke(ctx, args)
}

// Schema returns the wire-format description sent to providers.
func (t Tool) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
	}
}
