package tools

import (
	"context"
	"errors"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

var openSchema = Schema{AllowAdditional: true}

// NewFixed returns a tool that always returns output. A zero schema accepts
// any arguments.
func NewFixed(name string, schema Schema, output interface{}) *Func {
	if schema.Fields == nil && len(schema.Required) == 0 {
		schema = openSchema
	}
	return NewFunc(name, "Returns a fixed result.", schema,
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return output, nil
		},
	)
}

// NewFailing returns a tool that always fails with err. Errors other than
// *agenkit.ToolInvocationError are reported as permanent tool failures.
func NewFailing(name string, err error) *Func {
	return NewFunc(name, "Always fails.", openSchema,
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var toolErr *agenkit.ToolInvocationError
			if errors.As(err, &toolErr) {
				return nil, err
			}
			return nil, &agenkit.ToolInvocationError{Tool: name, Message: "tool failed", Err: err}
		},
	)
}
