package blockflow

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate checks graph integrity eagerly, before any run starts. Every
// problem found is an ErrorTypeGraph error: always fatal, never retried.
func (w *Workflow) validate() error {
	v := validator.New()

	for _, block := range w.blocks {
		if err := v.Struct(block); err != nil {
			return NewGraphError(fmt.Sprintf("invalid block %q: %v", block.ID, err))
		}
	}
	for _, edge := range w.edges {
		if err := v.Struct(edge); err != nil {
			return NewGraphError(fmt.Sprintf("invalid edge %q -> %q: %v", edge.From, edge.To, err))
		}
		if edge.From == edge.To {
			return NewGraphError(fmt.Sprintf("self-edge on block %q", edge.From))
		}
		if _, ok := w.blocksByID[edge.From]; !ok {
			return NewGraphError(fmt.Sprintf("edge references unknown block %q", edge.From))
		}
		if _, ok := w.blocksByID[edge.To]; !ok {
			return NewGraphError(fmt.Sprintf("edge references unknown block %q", edge.To))
		}
	}

	if err := w.validateGroupings(v); err != nil {
		return err
	}
	if err := w.validateBoundaries(); err != nil {
		return err
	}
	if err := w.validateAcyclic(); err != nil {
		return err
	}

	if len(w.EntryBlocks()) == 0 {
		return NewGraphError("workflow has no entry block")
	}
	return nil
}

func (w *Workflow) validateGroupings(v *validator.Validate) error {
	seen := map[string]string{}

	checkMembers := func(groupID string, members []string) error {
		if _, ok := w.blocksByID[groupID]; !ok {
			return NewGraphError(fmt.Sprintf("grouping %q does not match any block", groupID))
		}
		for _, member := range members {
			if _, ok := w.blocksByID[member]; !ok {
				return NewGraphError(fmt.Sprintf("grouping %q references unknown block %q", groupID, member))
			}
			if member == groupID {
				return NewGraphError(fmt.Sprintf("grouping %q contains its own block", groupID))
			}
			if prior, dup := seen[member]; dup {
				return NewGraphError(fmt.Sprintf("block %q belongs to both groupings %q and %q", member, prior, groupID))
			}
			seen[member] = groupID
		}
		return nil
	}

	for groupID, loop := range w.loops {
		if err := v.Struct(loop); err != nil {
			return NewGraphError(fmt.Sprintf("invalid loop %q: %v", groupID, err))
		}
		if block, ok := w.blocksByID[groupID]; ok && block.Type != BlockTypeLoop {
			return NewGraphError(fmt.Sprintf("loop grouping %q refers to a %q block", groupID, block.Type))
		}
		if loop.Iterations <= 0 && loop.ForEach == nil {
			return NewGraphError(fmt.Sprintf("loop %q needs a positive iteration count or a forEach collection", groupID))
		}
		if err := checkMembers(groupID, loop.Nodes); err != nil {
			return err
		}
	}
	for groupID, parallel := range w.parallels {
		if err := v.Struct(parallel); err != nil {
			return NewGraphError(fmt.Sprintf("invalid parallel %q: %v", groupID, err))
		}
		if block, ok := w.blocksByID[groupID]; ok && block.Type != BlockTypeParallel {
			return NewGraphError(fmt.Sprintf("parallel grouping %q refers to a %q block", groupID, block.Type))
		}
		if parallel.Distribution == nil && parallel.Count <= 0 {
			return NewGraphError(fmt.Sprintf("parallel %q needs a distribution collection or a positive count", groupID))
		}
		if err := checkMembers(groupID, parallel.Nodes); err != nil {
			return err
		}
	}
	return nil
}

// validateBoundaries enforces that the only edges crossing a grouping boundary
// are the grouping block's own start and end handles. Member blocks never
// connect outside their group directly.
func (w *Workflow) validateBoundaries() error {
	for _, edge := range w.edges {
		fromGroup := w.memberOf[edge.From]
		toGroup := w.memberOf[edge.To]

		switch edge.SourceHandle {
		case SourceHandleLoopStart, SourceHandleParallelStart:
			if toGroup != edge.From {
				return NewGraphError(fmt.Sprintf(
					"start handle edge %q -> %q must target a member of grouping %q", edge.From, edge.To, edge.From))
			}
		case SourceHandleLoopEnd, SourceHandleParallelEnd:
			if toGroup == edge.From {
				return NewGraphError(fmt.Sprintf(
					"end handle edge %q -> %q must leave grouping %q", edge.From, edge.To, edge.From))
			}
		default:
			if fromGroup != toGroup {
				return NewGraphError(fmt.Sprintf(
					"edge %q -> %q crosses a grouping boundary", edge.From, edge.To))
			}
		}
	}
	return nil
}

// validateAcyclic rejects cycles. Repetition is expressed through loop
// groupings, never through back-edges, so any cycle is an authoring error.
func (w *Workflow) validateAcyclic() error {
	indegree := map[string]int{}
	for _, block := range w.blocks {
		indegree[block.ID] = 0
	}
	for _, edge := range w.edges {
		indegree[edge.To]++
	}

	var queue []string
	for id, n := range indegree {
		if n == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, edge := range w.outbound[id] {
			indegree[edge.To]--
			if indegree[edge.To] == 0 {
				queue = append(queue, edge.To)
			}
		}
	}
	if visited != len(w.blocks) {
		return NewGraphError("workflow graph contains a cycle")
	}
	return nil
}
