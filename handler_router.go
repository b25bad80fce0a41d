package blockflow

import (
	"context"
	"fmt"

	"github.com/blockflow-ai/blockflow/script"
)

// RouterHandler evaluates a routing expression and directs execution to
// exactly one downstream block. The expression must produce the id or name of
// a direct successor; anything else fails the block.
type RouterHandler struct {
	workflow *Workflow
	compiler script.Compiler
}

// NewRouterHandler creates the handler for router blocks.
func NewRouterHandler(workflow *Workflow, compiler script.Compiler) *RouterHandler {
	return &RouterHandler{workflow: workflow, compiler: compiler}
}

func (h *RouterHandler) CanHandle(block *Block) bool {
	return block.Type == BlockTypeRouter
}

func (h *RouterHandler) Execute(ctx context.Context, block *Block, inputs map[string]any, ectx *ExecutionContext) (map[string]any, error) {
	expression, _ := inputs["expression"].(string)
	if expression == "" {
		return nil, NewValidationError(block.ID, block.DisplayName(), "expression", "router expression is required")
	}

	compiler := h.compiler
	if compiler == nil {
		ctxCompiler, ok := GetCompilerFromContext(ctx)
		if !ok {
			return nil, NewValidationError(block.ID, block.DisplayName(), "expression", "no script compiler available")
		}
		compiler = ctxCompiler
	}

	resolver := NewResolver(h.workflow, ectx)
	compiled, err := compiler.Compile(ctx, expression)
	if err != nil {
		return nil, NewValidationError(block.ID, block.DisplayName(), "expression", err.Error())
	}
	value, err := compiled.Evaluate(ctx, resolver.ScriptGlobals(block))
	if err != nil {
		return nil, fmt.Errorf("router expression: %w", err)
	}

	target, err := h.resolveTarget(value.String(), block)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"selectedTarget": target,
		"result":         value.Value(),
	}, nil
}

// resolveTarget maps the expression result to the id of a direct successor,
// accepting either a block id or a block name.
func (h *RouterHandler) resolveTarget(selected string, block *Block) (string, error) {
	if selected == "" {
		return "", NewValidationError(block.ID, block.DisplayName(), "expression", "router selected no target")
	}

	candidates := map[string]bool{}
	for _, edge := range h.workflow.Outbound(block.ID) {
		candidates[edge.To] = true
	}

	if candidates[selected] {
		return selected, nil
	}
	ids := h.workflow.BlockIDsByName(selected)
	if len(ids) > 1 {
		return "", NewValidationError(block.ID, block.DisplayName(), "expression",
			fmt.Sprintf("ambiguous target name %q", selected))
	}
	if len(ids) == 1 && candidates[ids[0]] {
		return ids[0], nil
	}
	return "", NewValidationError(block.ID, block.DisplayName(), "expression",
		fmt.Sprintf("router target %q is not a successor of this block", selected))
}
