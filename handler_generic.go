package blockflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// GenericHandler executes tool-backed blocks through the uniform invoke
// contract. It claims every block, so it must sit last in the handler chain.
type GenericHandler struct {
	registry ToolRegistry
	logger   *slog.Logger
}

// NewGenericHandler creates the fallback handler over a tool registry.
func NewGenericHandler(registry ToolRegistry, logger *slog.Logger) *GenericHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenericHandler{registry: registry, logger: logger}
}

func (h *GenericHandler) CanHandle(block *Block) bool {
	return true
}

func (h *GenericHandler) Execute(ctx context.Context, block *Block, inputs map[string]any, ectx *ExecutionContext) (map[string]any, error) {
	toolID := block.Config.Tool
	if toolID == "" {
		toolID = block.Type
	}
	tool, ok := h.registry[toolID]
	if !ok {
		return nil, NewValidationError(block.ID, block.DisplayName(), "config.tool",
			fmt.Sprintf("unknown tool %q", toolID))
	}

	params := inputs
	if transformer, ok := tool.(RequestTransformer); ok {
		transformed, err := transformer.TransformRequest(params)
		if err != nil {
			return nil, NewToolError(toolID, block.ID, block.DisplayName(),
				fmt.Sprintf("request transform failed: %s", err), nil)
		}
		params = transformed
	}

	tctx := ToolContext{
		WorkflowID:   ectx.WorkflowID(),
		WorkspaceID:  ectx.WorkspaceID(),
		RunID:        ectx.RunID(),
		BlockID:      block.ID,
		BlockName:    block.DisplayName(),
		InvocationID: uuid.NewString(),
	}
	h.logger.DebugContext(ctx, "invoking tool",
		"tool", toolID,
		"block_id", block.ID,
		"invocation_id", tctx.InvocationID)

	result, err := tool.Invoke(ctx, params, tctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewTimeoutError(toolID, block.ID, block.DisplayName(), err.Error())
		}
		if errors.Is(err, context.Canceled) {
			return nil, NewCancelledError(err.Error())
		}
		return nil, NewToolError(toolID, block.ID, block.DisplayName(), err.Error(), nil)
	}
	if !result.Success {
		message := result.Error
		if message == "" {
			message = "tool reported failure"
		}
		return nil, NewToolError(toolID, block.ID, block.DisplayName(), message, result.Output)
	}

	output := make(map[string]any, len(result.Output)+1)
	for key, value := range result.Output {
		output[key] = value
	}
	if transformer, ok := tool.(ResponseTransformer); ok {
		transformed, err := transformer.TransformResponse(output)
		if err != nil {
			return nil, NewToolError(toolID, block.ID, block.DisplayName(),
				fmt.Sprintf("response transform failed: %s", err), result.Output)
		}
		output = transformed
	}
	if result.Usage != nil {
		output["usage"] = result.Usage
	}
	return output, nil
}
