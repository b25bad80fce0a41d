package blockflow

import (
	"context"
)

// FunctionHandler executes a block's user code through the configured code
// runner. The code sees env, variables and prior block outputs as globals;
// its return value and captured print output become the block's output.
type FunctionHandler struct {
	workflow *Workflow
	runner   CodeRunner
}

// NewFunctionHandler creates the handler for function blocks.
func NewFunctionHandler(workflow *Workflow, runner CodeRunner) *FunctionHandler {
	return &FunctionHandler{workflow: workflow, runner: runner}
}

func (h *FunctionHandler) CanHandle(block *Block) bool {
	return block.Type == BlockTypeFunction
}

func (h *FunctionHandler) Execute(ctx context.Context, block *Block, inputs map[string]any, ectx *ExecutionContext) (map[string]any, error) {
	code, _ := inputs["code"].(string)
	if code == "" {
		return nil, NewValidationError(block.ID, block.DisplayName(), "code", "function code is required")
	}

	globals := NewResolver(h.workflow, ectx).ScriptGlobals(block)
	result, err := h.runner.Run(ctx, code, globals)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"result": result.Result,
		"stdout": result.Stdout,
	}, nil
}
