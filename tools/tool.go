// Package tools provides the tool registry and the research tools available to
// the researcher agent.
package tools

import (
	"context"
)

// Tool is a named capability the researcher can invoke.
type Tool interface {
	Name() string
	Description() string

	// Schema declares the arguments Invoke accepts.
	Schema() Schema

	// Invoke runs the tool. Failures should be *agenkit.ToolInvocationError so
	// callers can tell transient failures from permanent ones.
	Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Func is a Tool backed by a plain function.
type Func struct {
	name        string
	description string
	schema      Schema
	fn          func(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// NewFunc creates a function-backed tool.
func NewFunc(name, description string, schema Schema, fn func(ctx context.Context, args map[string]interface{}) (interface{}, error)) *Func {
	return &Func{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
}

func (f *Func) Name() string        { return f.name }
func (f *Func) Description() string { return f.description }
func (f *Func) Schema() Schema      { return f.schema }

func (f *Func) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return f.fn(ctx, args)
}
