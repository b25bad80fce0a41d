package blockflow

import (
	"context"
	"fmt"
	"sync"
)

// ParallelHandler fans a grouping's member sub-graph out across the elements
// of a collection (or a fixed branch count). Every branch runs on its own
// goroutine against an isolated child context; results aggregate strictly in
// collection order no matter which branch finishes first.
type ParallelHandler struct {
	workflow *Workflow
	runner   SubgraphRunner
}

// NewParallelHandler creates the handler for parallel blocks.
func NewParallelHandler(workflow *Workflow, runner SubgraphRunner) *ParallelHandler {
	return &ParallelHandler{workflow: workflow, runner: runner}
}

func (h *ParallelHandler) CanHandle(block *Block) bool {
	return block.Type == BlockTypeParallel
}

func (h *ParallelHandler) Execute(ctx context.Context, block *Block, inputs map[string]any, ectx *ExecutionContext) (map[string]any, error) {
	parallel, ok := h.workflow.Parallel(block.ID)
	if !ok {
		return nil, NewValidationError(block.ID, block.DisplayName(), "parallel", "block has no parallel grouping")
	}

	items, count, err := h.fanOutPlan(parallel, block, ectx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return map[string]any{"results": []any{}, "branches": 0}, nil
	}

	members := memberIDs(h.workflow, block.ID)
	leaves := leafMembers(h.workflow, block.ID)

	type branch struct {
		child *ExecutionContext
		err   error
	}
	branches := make([]branch, count)

	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			child := ectx.Child()
			scope := &LoopScope{Index: i, Items: items}
			if items != nil {
				scope.Item = items[i]
			}
			child.SetLoopScope(block.ID, scope)
			child.ResetBlocks(members)

			err := h.runner.RunSubgraph(branchCtx, block.ID, child)
			branches[i] = branch{child: child, err: err}
			if err != nil && parallel.IsFailFast() {
				cancel()
			}
		}(i)
	}
	wg.Wait()

	// Aggregate on the parent goroutine, in source order. Branch diagnostics
	// surface as synthetic memberID#branch states on the parent context.
	results := make([]any, count)
	var firstErr error
	for i, b := range branches {
		for _, member := range members {
			if state, ok := b.child.BlockState(member); ok {
				ectx.MergeBlockState(fmt.Sprintf("%s#%d", member, i), state)
			}
		}
		if b.err != nil {
			if parallel.IsFailFast() {
				// Prefer the branch that actually failed over siblings that
				// were cancelled because of it.
				if firstErr == nil || (MatchesErrorType(firstErr, ErrorTypeCancelled) && !MatchesErrorType(b.err, ErrorTypeCancelled)) {
					firstErr = b.err
				}
				continue
			}
			results[i] = map[string]any{"error": b.err.Error()}
			continue
		}
		results[i] = groupResult(leaves, b.child)
	}
	if firstErr != nil {
		return nil, firstErr
	}

	return map[string]any{
		"results":  results,
		"branches": count,
	}, nil
}

// fanOutPlan decides how many branches to run and over which items. A
// distribution collection wins over a fixed count.
func (h *ParallelHandler) fanOutPlan(parallel *Parallel, block *Block, ectx *ExecutionContext) ([]any, int, error) {
	if parallel.Distribution == nil {
		return nil, parallel.Count, nil
	}
	resolved, err := NewResolver(h.workflow, ectx).ResolveValue(parallel.Distribution, block)
	if err != nil {
		return nil, 0, err
	}
	items, ok := collectionItems(resolved)
	if !ok {
		return nil, 0, NewValidationError(block.ID, block.DisplayName(), "distribution",
			fmt.Sprintf("distribution must be a collection, got %T", resolved))
	}
	return items, len(items), nil
}
