package blockflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// LoopHandler runs a grouping's member sub-graph once per iteration, strictly
// in order. Member states are reset between passes so each iteration executes
// against a clean slate, and the loop variable is visible to members as
// loop.index, loop.currentItem and loop.items.
type LoopHandler struct {
	workflow *Workflow
	runner   SubgraphRunner
}

// NewLoopHandler creates the handler for loop blocks.
func NewLoopHandler(workflow *Workflow, runner SubgraphRunner) *LoopHandler {
	return &LoopHandler{workflow: workflow, runner: runner}
}

func (h *LoopHandler) CanHandle(block *Block) bool {
	return block.Type == BlockTypeLoop
}

func (h *LoopHandler) Execute(ctx context.Context, block *Block, inputs map[string]any, ectx *ExecutionContext) (map[string]any, error) {
	loop, ok := h.workflow.Loop(block.ID)
	if !ok {
		return nil, NewValidationError(block.ID, block.DisplayName(), "loop", "block has no loop grouping")
	}

	items, count, err := h.iterationPlan(loop, block, ectx)
	if err != nil {
		return nil, err
	}

	members := memberIDs(h.workflow, block.ID)
	leaves := leafMembers(h.workflow, block.ID)
	results := make([]any, 0, count)

	defer ectx.ClearLoopScope(block.ID)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scope := &LoopScope{Index: i, Items: items}
		if items != nil {
			scope.Item = items[i]
		}
		ectx.SetLoopScope(block.ID, scope)
		ectx.ResetBlocks(members)

		if err := h.runner.RunSubgraph(ctx, block.ID, ectx); err != nil {
			return nil, err
		}
		results = append(results, groupResult(leaves, ectx))
		ectx.IncrementIteration(block.ID)
	}

	return map[string]any{
		"results":    results,
		"iterations": count,
	}, nil
}

// iterationPlan decides how many passes to run and over which items. A
// forEach collection wins over a fixed iteration count.
func (h *LoopHandler) iterationPlan(loop *Loop, block *Block, ectx *ExecutionContext) ([]any, int, error) {
	if loop.ForEach == nil {
		return nil, loop.Iterations, nil
	}
	resolved, err := NewResolver(h.workflow, ectx).ResolveValue(loop.ForEach, block)
	if err != nil {
		return nil, 0, err
	}
	items, ok := collectionItems(resolved)
	if !ok {
		return nil, 0, NewValidationError(block.ID, block.DisplayName(), "forEach",
			fmt.Sprintf("forEach must be a collection, got %T", resolved))
	}
	return items, len(items), nil
}

// collectionItems coerces a resolved value into fan-out items. Maps iterate
// as key/value entries sorted by key so runs stay deterministic; strings that
// look like JSON are parsed once.
func collectionItems(value any) ([]any, bool) {
	switch v := value.(type) {
	case nil:
		return []any{}, true
	case []any:
		return v, true
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		items := make([]any, 0, len(keys))
		for _, key := range keys {
			items = append(items, map[string]any{"key": key, "value": v[key]})
		}
		return items, true
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return collectionItems(parsed)
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

// memberIDs returns a grouping's member block ids in sorted order.
func memberIDs(workflow *Workflow, groupID string) []string {
	members := workflow.GroupMembers(groupID)
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// leafMembers returns the members of a grouping with no edge to another
// member. Their outputs form the grouping's per-iteration result.
func leafMembers(workflow *Workflow, groupID string) []string {
	inGroup := workflow.GroupMembers(groupID)
	var leaves []string
	for _, id := range memberIDs(workflow, groupID) {
		leaf := true
		for _, edge := range workflow.Outbound(id) {
			if inGroup[edge.To] {
				leaf = false
				break
			}
		}
		if leaf {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

// groupResult snapshots one iteration's outcome: the single leaf's output, or
// a map keyed by leaf id when the sub-graph has several sinks.
func groupResult(leaves []string, ectx *ExecutionContext) any {
	if len(leaves) == 1 {
		if state, ok := ectx.BlockState(leaves[0]); ok {
			return state.Output
		}
		return nil
	}
	result := make(map[string]any, len(leaves))
	for _, id := range leaves {
		if state, ok := ectx.BlockState(id); ok {
			result[id] = state.Output
		} else {
			result[id] = nil
		}
	}
	return result
}
