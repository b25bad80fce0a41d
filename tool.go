package blockflow

import (
	"context"
)

// ToolContext carries run correlation ids into a tool invocation so external
// systems can attribute the call.
type ToolContext struct {
	WorkflowID   string `json:"workflow_id,omitempty"`
	WorkspaceID  string `json:"workspace_id,omitempty"`
	RunID        string `json:"run_id,omitempty"`
	BlockID      string `json:"block_id,omitempty"`
	BlockName    string `json:"block_name,omitempty"`
	InvocationID string `json:"invocation_id,omitempty"`
}

// Usage captures resource consumption reported by a tool invocation.
type Usage struct {
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	TotalTokens  int     `json:"total_tokens,omitempty"`
	Cost         float64 `json:"cost,omitempty"`
}

// ToolResult is the uniform envelope every tool returns. A failed invocation
// sets Success false and Error; Output may still carry the raw response for
// diagnostics.
type ToolResult struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// Tool is an action a block can invoke through the uniform contract.
type Tool interface {

	// Name returns the tool id blocks reference in config.tool.
	Name() string

	// Invoke runs the tool with resolved params.
	Invoke(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error)
}

// ToolRegistry is a map of tool ids to tools.
type ToolRegistry map[string]Tool

// RequestTransformer is implemented by tools that reshape params before
// invocation, for example mapping block config fields onto an API payload.
type RequestTransformer interface {
	TransformRequest(params map[string]any) (map[string]any, error)
}

// ResponseTransformer is implemented by tools that reshape their raw output
// before it is stored as block state.
type ResponseTransformer interface {
	TransformResponse(output map[string]any) (map[string]any, error)
}

// ToolFunction is a function that can be used as a tool
type ToolFunction struct {
	name string
	fn   func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error)
}

// NewToolFunction creates a new ToolFunction
func NewToolFunction(name string, fn func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error)) *ToolFunction {
	return &ToolFunction{name: name, fn: fn}
}

func (t *ToolFunction) Name() string {
	return t.name
}

func (t *ToolFunction) Invoke(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
	return t.fn(ctx, params, tctx)
}
