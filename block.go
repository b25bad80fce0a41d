package blockflow

import (
	"strings"
	"time"
)

// Built-in block types. Any other type tag is dispatched to the generic tool
// handler.
const (
	BlockTypeStarter   = "starter"
	BlockTypeFunction  = "function"
	BlockTypeCondition = "condition"
	BlockTypeRouter    = "router"
	BlockTypeLoop      = "loop"
	BlockTypeParallel  = "parallel"
	BlockTypeWorkflow  = "workflow"
)

// Source handles tag an edge with the branch it belongs to. An edge without a
// handle is a default success edge.
const (
	// SourceHandleError marks an edge taken when its source block fails.
	SourceHandleError = "error"

	// Loop and parallel boundary handles. Start handles lead from the grouping
	// block to the member sub-graph entry blocks; end handles lead from the
	// grouping block to its downstream successors once iteration completes.
	SourceHandleLoopStart     = "loop-start-source"
	SourceHandleLoopEnd       = "loop-end-source"
	SourceHandleParallelStart = "parallel-start-source"
	SourceHandleParallelEnd   = "parallel-end-source"

	// ConditionHandlePrefix prefixes the branch id chosen by a condition block.
	ConditionHandlePrefix = "condition-"
)

// BlockConfig holds the serialized configuration of a block: the external tool
// it invokes (when tool-backed) and its raw, unresolved input parameters.
type BlockConfig struct {
	Tool   string         `json:"tool,omitempty" yaml:"tool,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Block is one serialized node of a workflow graph. Blocks are immutable
// during execution.
type Block struct {
	ID      string      `json:"id" yaml:"id" validate:"required"`
	Type    string      `json:"type" yaml:"type" validate:"required"`
	Name    string      `json:"name,omitempty" yaml:"name,omitempty"`
	Config  BlockConfig `json:"config,omitempty" yaml:"config,omitempty"`
	Enabled *bool       `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// TimeoutSeconds caps the block's execution. Zero means no block-level
	// timeout; the run deadline still applies.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" validate:"gte=0"`

	// InputSchema optionally declares the block's inputs as JSON Schema
	// properties. Fields listed under "required" must resolve to non-empty
	// values before the block may start.
	InputSchema map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
}

// IsEnabled reports whether the block participates in execution. Disabled
// blocks are skipped and treated as satisfied dependencies.
func (b *Block) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// Timeout returns the block-level timeout, zero when unset.
func (b *Block) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// DisplayName returns the block's human label or its id when unnamed.
func (b *Block) DisplayName() string {
	if b.Name != "" {
		return b.Name
	}
	return b.ID
}

// Edge is a directed dependency between two blocks, optionally tagged with the
// source handle of the branch it belongs to.
type Edge struct {
	From         string `json:"from" yaml:"from" validate:"required"`
	To           string `json:"to" yaml:"to" validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
}

// IsConditionHandle reports whether the edge belongs to a condition branch and
// returns the branch id when it does.
func (e *Edge) IsConditionHandle() (string, bool) {
	if strings.HasPrefix(e.SourceHandle, ConditionHandlePrefix) {
		return strings.TrimPrefix(e.SourceHandle, ConditionHandlePrefix), true
	}
	return "", false
}

// Loop marks a sub-graph for repeated execution: either a bounded number of
// iterations or one pass per element of a collection.
type Loop struct {
	Nodes      []string `json:"nodes" yaml:"nodes" validate:"required,min=1"`
	Iterations int      `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	ForEach    any      `json:"forEach,omitempty" yaml:"forEach,omitempty"`
}

// Parallel marks a sub-graph for concurrent fan-out across a collection (or a
// fixed branch count). FailFast controls whether a branch error fails the
// whole fan-out (the default) or is captured in that branch's result slot.
type Parallel struct {
	Nodes        []string `json:"nodes" yaml:"nodes" validate:"required,min=1"`
	Distribution any      `json:"distribution,omitempty" yaml:"distribution,omitempty"`
	Count        int      `json:"count,omitempty" yaml:"count,omitempty"`
	FailFast     *bool    `json:"failFast,omitempty" yaml:"failFast,omitempty"`
}

// IsFailFast reports whether a branch error should fail the whole parallel.
func (p *Parallel) IsFailFast() bool {
	return p.FailFast == nil || *p.FailFast
}

// NormalizeBlockName strips all whitespace and case-folds a block display name
// so references tolerate display-name drift.
func NormalizeBlockName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}
