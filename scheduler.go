package blockflow

import (
	"sort"
	"strings"
)

// scheduler computes which blocks may run next inside one scope: the top
// level of a workflow, or the members of one grouping. Readiness follows
// inbound edges, branch decisions and error routing. A block whose every
// relevant inbound edge was bypassed is pruned from the pass, and pruning
// cascades until no block changes.
type scheduler struct {
	workflow *Workflow
	universe map[string]bool
	pruned   map[string]bool
}

// newScheduler scopes a scheduler to a grouping's members, or to all
// non-member blocks when groupID is empty.
func newScheduler(workflow *Workflow, groupID string) *scheduler {
	universe := make(map[string]bool)
	if groupID == "" {
		for _, block := range workflow.Blocks() {
			if _, member := workflow.GroupOf(block.ID); !member {
				universe[block.ID] = true
			}
		}
	} else {
		for id := range workflow.GroupMembers(groupID) {
			universe[id] = true
		}
	}
	return &scheduler{
		workflow: workflow,
		universe: universe,
		pruned:   make(map[string]bool),
	}
}

// next returns the blocks ready to execute now, in stable order. done is
// true when the scope has nothing ready and nothing pending, which, on an
// acyclic graph, means every block either finished or was pruned.
func (s *scheduler) next(ectx *ExecutionContext) (ready []string, done bool) {
	states := ectx.BlockStates()
	s.prune(ectx, states)

	for id := range s.universe {
		if s.pruned[id] || isTerminal(states[id]) {
			continue
		}
		pending, satisfied := s.edgeCounts(ectx, states, id)
		if pending > 0 {
			continue
		}
		if satisfied > 0 || s.inboundCount(id) == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready, len(ready) == 0
}

// Pruned reports whether the block was removed from the pass because no
// inbound edge could ever satisfy it.
func (s *scheduler) Pruned(blockID string) bool {
	return s.pruned[blockID]
}

// prune repeatedly removes blocks whose inbound edges are all bypassed.
// Removing a block bypasses its own outbound edges, so the loop runs to a
// fixpoint.
func (s *scheduler) prune(ectx *ExecutionContext, states map[string]*BlockState) {
	for {
		changed := false
		for id := range s.universe {
			if s.pruned[id] || isTerminal(states[id]) || s.inboundCount(id) == 0 {
				continue
			}
			pending, satisfied := s.edgeCounts(ectx, states, id)
			if pending == 0 && satisfied == 0 {
				s.pruned[id] = true
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// edgeCounts classifies the block's in-scope inbound edges. An edge is
// pending while its source has not finished, satisfied when the source
// finished and its outcome activates the edge, and bypassed otherwise.
func (s *scheduler) edgeCounts(ectx *ExecutionContext, states map[string]*BlockState, blockID string) (pending, satisfied int) {
	for _, edge := range s.workflow.Inbound(blockID) {
		if !s.universe[edge.From] || s.pruned[edge.From] {
			continue
		}
		source := states[edge.From]
		if !isTerminal(source) {
			pending++
			continue
		}
		if s.edgeActive(edge, source, ectx) {
			satisfied++
		}
	}
	return pending, satisfied
}

// edgeActive decides whether a finished source block activates the edge.
func (s *scheduler) edgeActive(edge *Edge, source *BlockState, ectx *ExecutionContext) bool {
	sourceBlock, _ := s.workflow.GetBlock(edge.From)

	switch source.Status {
	case BlockStatusError:
		return edge.SourceHandle == SourceHandleError

	case BlockStatusSkipped:
		// A skipped block passes through on its default edges. Branching
		// blocks made no decision, so none of their branches activate.
		if edge.SourceHandle == SourceHandleError {
			return false
		}
		if strings.HasPrefix(edge.SourceHandle, ConditionHandlePrefix) {
			return false
		}
		if sourceBlock != nil && (sourceBlock.Type == BlockTypeRouter || sourceBlock.Type == BlockTypeCondition) {
			return false
		}
		return true

	case BlockStatusCompleted:
		if edge.SourceHandle == SourceHandleError {
			return false
		}
		if sourceBlock != nil {
			switch sourceBlock.Type {
			case BlockTypeCondition:
				decision, ok := ectx.Decision(edge.From)
				return ok && decision != "" && edge.SourceHandle == decision
			case BlockTypeRouter:
				decision, ok := ectx.Decision(edge.From)
				return ok && edge.To == decision
			}
		}
		return true

	default:
		return false
	}
}

func (s *scheduler) inboundCount(blockID string) int {
	count := 0
	for _, edge := range s.workflow.Inbound(blockID) {
		if s.universe[edge.From] {
			count++
		}
	}
	return count
}

func isTerminal(state *BlockState) bool {
	return state != nil && state.Status.Terminal()
}
