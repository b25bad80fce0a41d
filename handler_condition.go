package blockflow

import (
	"context"
	"fmt"

	"github.com/blockflow-ai/blockflow/script"
)

// ConditionHandler evaluates a block's ordered condition list and selects the
// branch of the first truthy expression. An entry without an expression is an
// else branch and always matches. When nothing matches, no branch is selected
// and every downstream of the block is pruned.
type ConditionHandler struct {
	workflow *Workflow
	compiler script.Compiler
}

// NewConditionHandler creates the handler for condition blocks.
func NewConditionHandler(workflow *Workflow, compiler script.Compiler) *ConditionHandler {
	return &ConditionHandler{workflow: workflow, compiler: compiler}
}

func (h *ConditionHandler) CanHandle(block *Block) bool {
	return block.Type == BlockTypeCondition
}

func (h *ConditionHandler) Execute(ctx context.Context, block *Block, inputs map[string]any, ectx *ExecutionContext) (map[string]any, error) {
	entries, err := parseConditions(inputs["conditions"])
	if err != nil {
		return nil, NewValidationError(block.ID, block.DisplayName(), "conditions", err.Error())
	}
	if len(entries) == 0 {
		return nil, NewValidationError(block.ID, block.DisplayName(), "conditions", "at least one condition is required")
	}

	compiler := h.compiler
	if compiler == nil {
		ctxCompiler, ok := GetCompilerFromContext(ctx)
		if !ok {
			return nil, NewValidationError(block.ID, block.DisplayName(), "conditions", "no script compiler available")
		}
		compiler = ctxCompiler
	}

	globals := NewResolver(h.workflow, ectx).ScriptGlobals(block)
	for _, entry := range entries {
		if entry.Expression == "" {
			return conditionOutput(entry.ID, true), nil
		}
		compiled, err := compiler.Compile(ctx, entry.Expression)
		if err != nil {
			return nil, NewValidationError(block.ID, block.DisplayName(), "conditions",
				fmt.Sprintf("condition %q: %s", entry.ID, err))
		}
		value, err := compiled.Evaluate(ctx, globals)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", entry.ID, err)
		}
		if value.IsTruthy() {
			return conditionOutput(entry.ID, true), nil
		}
	}
	return map[string]any{
		"selectedHandle":      "",
		"selectedConditionId": "",
		"result":              false,
	}, nil
}

func conditionOutput(conditionID string, result bool) map[string]any {
	return map[string]any{
		"selectedHandle":      ConditionHandlePrefix + conditionID,
		"selectedConditionId": conditionID,
		"result":              result,
	}
}

type conditionEntry struct {
	ID         string
	Expression string
}

func parseConditions(raw any) ([]conditionEntry, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("conditions must be a list, got %T", raw)
	}
	entries := make([]conditionEntry, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("condition %d must be an object, got %T", i, item)
		}
		id, _ := entry["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("condition %d is missing an id", i)
		}
		expression, _ := entry["expression"].(string)
		entries = append(entries, conditionEntry{ID: id, Expression: expression})
	}
	return entries, nil
}
