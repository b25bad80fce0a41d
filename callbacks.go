package blockflow

import (
	"context"
	"time"
)

// RunCallbacks defines the callback interface for run execution events
type RunCallbacks interface {
	// Run-level callbacks
	BeforeRunExecution(ctx context.Context, event *RunExecutionEvent)
	AfterRunExecution(ctx context.Context, event *RunExecutionEvent)

	// Block-level callbacks
	BeforeBlockExecution(ctx context.Context, event *BlockExecutionEvent)
	AfterBlockExecution(ctx context.Context, event *BlockExecutionEvent)
}

// RunExecutionEvent provides context for run-level execution events
type RunExecutionEvent struct {
	RunID        string
	WorkflowName string
	Status       RunStatus
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Input        map[string]any
	Output       map[string]any
	Depth        int
	Error        error
}

// BlockExecutionEvent provides context for block-level execution events
type BlockExecutionEvent struct {
	RunID        string
	WorkflowName string
	BlockID      string
	BlockName    string
	BlockType    string
	Inputs       map[string]any
	Output       map[string]any
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Error        error
}

// BaseRunCallbacks provides a default implementation that does nothing
type BaseRunCallbacks struct{}

func (n *BaseRunCallbacks) BeforeRunExecution(ctx context.Context, event *RunExecutionEvent) {
	// noop
}

func (n *BaseRunCallbacks) AfterRunExecution(ctx context.Context, event *RunExecutionEvent) {
	// noop
}

func (n *BaseRunCallbacks) BeforeBlockExecution(ctx context.Context, event *BlockExecutionEvent) {
	// noop
}

func (n *BaseRunCallbacks) AfterBlockExecution(ctx context.Context, event *BlockExecutionEvent) {
	// noop
}

// NewBaseRunCallbacks creates a new no-op callbacks implementation. Embed
// this in your own callbacks to get a default implementation that does
// nothing.
func NewBaseRunCallbacks() RunCallbacks {
	return &BaseRunCallbacks{}
}

// CallbackChain allows chaining multiple callback implementations
type CallbackChain struct {
	callbacks []RunCallbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...RunCallbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback RunCallbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) BeforeRunExecution(ctx context.Context, event *RunExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeRunExecution(ctx, event)
	}
}

func (c *CallbackChain) AfterRunExecution(ctx context.Context, event *RunExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.AfterRunExecution(ctx, event)
	}
}

func (c *CallbackChain) BeforeBlockExecution(ctx context.Context, event *BlockExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeBlockExecution(ctx, event)
	}
}

func (c *CallbackChain) AfterBlockExecution(ctx context.Context, event *BlockExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.AfterBlockExecution(ctx, event)
	}
}
