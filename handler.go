package blockflow

import (
	"context"
)

// BlockHandler executes one category of blocks.
type BlockHandler interface {

	// CanHandle reports whether this handler executes the given block.
	CanHandle(block *Block) bool

	// Execute runs the block with its resolved inputs and returns the output
	// to record as block state. Branch decisions are returned inside the
	// output rather than written to the context.
	Execute(ctx context.Context, block *Block, inputs map[string]any, ectx *ExecutionContext) (map[string]any, error)
}

// HandlerChain resolves blocks to handlers by registration order. Specialized
// handlers go first; a generic fallback that claims everything goes last.
type HandlerChain []BlockHandler

// HandlerFor returns the first handler claiming the block.
func (c HandlerChain) HandlerFor(block *Block) (BlockHandler, bool) {
	for _, handler := range c {
		if handler.CanHandle(block) {
			return handler, true
		}
	}
	return nil, false
}

// SubgraphRunner executes the member blocks of a grouping against an
// execution context. The executor implements it; the loop and parallel
// handlers use it to run their bodies.
type SubgraphRunner interface {
	RunSubgraph(ctx context.Context, groupID string, ectx *ExecutionContext) error
}
