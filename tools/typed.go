// Package tools provides the built-in tools registered with workflow
// executors: http, json, time, wait, random, echo and fail. Each tool
// implements the blockflow.Tool contract; NewTypedTool adapts tools with
// typed parameter structs.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blockflow-ai/blockflow"
)

// Confirm the interfaces are implemented correctly.
var (
	_ blockflow.Tool      = (*typedTool[any, any])(nil)
	_ TypedTool[any, any] = (*typedToolFunction[any, any])(nil)
)

// TypedTool is a tool with typed parameters and output. Parameters arrive via
// JSON round-trip, so struct tags on the params type describe the inputs a
// block is expected to provide.
type TypedTool[TParams, TResult any] interface {

	// Name returns the tool id blocks reference in config.tool.
	Name() string

	// Execute the tool with typed parameters.
	Execute(ctx context.Context, params TParams, tctx blockflow.ToolContext) (TResult, error)
}

// NewTypedTool adapts a TypedTool to the generic Tool interface.
func NewTypedTool[TParams, TResult any](tool TypedTool[TParams, TResult]) blockflow.Tool {
	return &typedTool[TParams, TResult]{tool: tool}
}

type typedTool[TParams, TResult any] struct {
	tool TypedTool[TParams, TResult]
}

// Name of the Tool.
func (t *typedTool[TParams, TResult]) Name() string {
	return t.tool.Name()
}

// Invoke the tool, converting the raw params to the typed form.
func (t *typedTool[TParams, TResult]) Invoke(ctx context.Context, params map[string]any, tctx blockflow.ToolContext) (*blockflow.ToolResult, error) {
	var typedParams TParams
	if err := convert(params, &typedParams); err != nil {
		return nil, fmt.Errorf("invalid parameters for tool %q: %w", t.tool.Name(), err)
	}
	result, err := t.tool.Execute(ctx, typedParams, tctx)
	if err != nil {
		return nil, err
	}
	output := map[string]any{}
	if err := convert(result, &output); err != nil {
		// Scalar results land under a "result" key.
		output = map[string]any{"result": result}
	}
	return &blockflow.ToolResult{Success: true, Output: output}, nil
}

// NewTypedToolFunction wraps a function for use as a TypedTool.
func NewTypedToolFunction[TParams, TResult any](name string, fn func(ctx context.Context, params TParams, tctx blockflow.ToolContext) (TResult, error)) blockflow.Tool {
	return NewTypedTool(&typedToolFunction[TParams, TResult]{name: name, fn: fn})
}

type typedToolFunction[TParams, TResult any] struct {
	name string
	fn   func(ctx context.Context, params TParams, tctx blockflow.ToolContext) (TResult, error)
}

func (t *typedToolFunction[TParams, TResult]) Name() string {
	return t.name
}

func (t *typedToolFunction[TParams, TResult]) Execute(ctx context.Context, params TParams, tctx blockflow.ToolContext) (TResult, error) {
	return t.fn(ctx, params, tctx)
}

// convert maps between representations via a JSON round-trip.
func convert(from any, to any) error {
	data, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, to)
}
