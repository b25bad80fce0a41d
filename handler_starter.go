package blockflow

import (
	"context"
)

// StarterHandler begins a run by publishing the run input as the starter
// block's output, so downstream blocks can reference it as <start.input>.
type StarterHandler struct{}

// NewStarterHandler creates the handler for starter blocks.
func NewStarterHandler() *StarterHandler {
	return &StarterHandler{}
}

func (h *StarterHandler) CanHandle(block *Block) bool {
	return block.Type == BlockTypeStarter
}

func (h *StarterHandler) Execute(ctx context.Context, block *Block, inputs map[string]any, ectx *ExecutionContext) (map[string]any, error) {
	input := ectx.Input()
	if input == nil {
		input = map[string]any{}
	}
	if err := ValidateBlockInputs(block, input); err != nil {
		return nil, err
	}
	return map[string]any{"input": input}, nil
}
