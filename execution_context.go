package blockflow

import (
	"sort"
	"sync"
	"time"
)

// BlockStatus represents the lifecycle state of one block within a run.
type BlockStatus string

const (
	BlockStatusPending   BlockStatus = "pending"
	BlockStatusRunning   BlockStatus = "running"
	BlockStatusCompleted BlockStatus = "completed"
	BlockStatusError     BlockStatus = "error"
	BlockStatusSkipped   BlockStatus = "skipped"
)

// Terminal reports whether the status counts as finished for scheduling.
func (s BlockStatus) Terminal() bool {
	return s == BlockStatusCompleted || s == BlockStatusError || s == BlockStatusSkipped
}

// BlockState records what happened to one block: its output, status and
// timing. States accumulate as blocks complete and are only removed when a
// loop iteration intentionally resets its member blocks.
type BlockState struct {
	BlockID   string         `json:"block_id"`
	BlockName string         `json:"block_name,omitempty"`
	Status    BlockStatus    `json:"status"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at,omitzero"`
	EndedAt   time.Time      `json:"ended_at,omitzero"`
}

// Copy returns a shallow copy of the state with its own output map.
func (s *BlockState) Copy() *BlockState {
	dup := *s
	dup.Output = copyAnyMap(s.Output)
	return &dup
}

// LoopScope carries the iteration variables of an active loop or parallel
// grouping, resolvable inside member blocks as loop.* or parallel.* references.
type LoopScope struct {
	Index int   `json:"index"`
	Item  any   `json:"item"`
	Items []any `json:"items,omitempty"`
}

// ContextOptions configure a new ExecutionContext.
type ContextOptions struct {
	RunID       string
	WorkflowID  string
	WorkspaceID string
	Input       map[string]any
	Environment map[string]string
	Variables   map[string]any

	// Depth counts how many child workflow levels sit above this run.
	Depth int
}

// ExecutionContext is the mutable per-run state. The run loop is the single
// writer: handlers read predecessor state and return outputs rather than
// writing directly. A mutex still guards all access because sibling branches
// and parallel fan-outs execute on real goroutines.
type ExecutionContext struct {
	mutex       sync.RWMutex
	runID       string
	workflowID  string
	workspaceID string
	depth       int
	input       map[string]any
	environment map[string]string
	variables   map[string]any
	blockStates map[string]*BlockState
	activePath  map[string]bool
	decisions   map[string]string
	scopes      map[string]*LoopScope
	iterations  map[string]int
}

// NewExecutionContext creates the state for a single run.
func NewExecutionContext(opts ContextOptions) *ExecutionContext {
	return &ExecutionContext{
		runID:       opts.RunID,
		workflowID:  opts.WorkflowID,
		workspaceID: opts.WorkspaceID,
		depth:       opts.Depth,
		input:       copyAnyMap(opts.Input),
		environment: copyStringMap(opts.Environment),
		variables:   copyAnyMap(opts.Variables),
		blockStates: make(map[string]*BlockState),
		activePath:  make(map[string]bool),
		decisions:   make(map[string]string),
		scopes:      make(map[string]*LoopScope),
		iterations:  make(map[string]int),
	}
}

// Depth returns how many child workflow levels sit above this run.
func (c *ExecutionContext) Depth() int {
	return c.depth
}

// Input returns a copy of the run input handed to the starter block.
func (c *ExecutionContext) Input() map[string]any {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return copyAnyMap(c.input)
}

// RunID returns the run correlation id.
func (c *ExecutionContext) RunID() string {
	return c.runID
}

// WorkflowID returns the workflow correlation id passed to external tools.
func (c *ExecutionContext) WorkflowID() string {
	return c.workflowID
}

// WorkspaceID returns the workspace correlation id passed to external tools.
func (c *ExecutionContext) WorkspaceID() string {
	return c.workspaceID
}

// Environment returns a copy of the run's environment variables.
func (c *ExecutionContext) Environment() map[string]string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return copyStringMap(c.environment)
}

// EnvironmentValue returns one environment variable.
func (c *ExecutionContext) EnvironmentValue(key string) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	value, ok := c.environment[key]
	return value, ok
}

// Variables returns a copy of the read-only workflow variables.
func (c *ExecutionContext) Variables() map[string]any {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return copyAnyMap(c.variables)
}

// Variable returns one workflow variable.
func (c *ExecutionContext) Variable(name string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	value, ok := c.variables[name]
	return value, ok
}

// RecordBlockStart marks a block as running.
func (c *ExecutionContext) RecordBlockStart(blockID, blockName string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.blockStates[blockID] = &BlockState{
		BlockID:   blockID,
		BlockName: blockName,
		Status:    BlockStatusRunning,
		StartedAt: time.Now(),
	}
	c.activePath[blockID] = true
}

// RecordBlockCompleted stores a block's output and marks it completed.
func (c *ExecutionContext) RecordBlockCompleted(blockID string, output map[string]any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	state := c.ensureStateLocked(blockID)
	state.Status = BlockStatusCompleted
	state.Output = output
	state.EndedAt = time.Now()
}

// RecordBlockError marks a block failed. The failure is also recorded as the
// block's output so error-routed successors can inspect it by reference.
func (c *ExecutionContext) RecordBlockError(blockID string, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	state := c.ensureStateLocked(blockID)
	state.Status = BlockStatusError
	state.Error = err.Error()
	state.Output = ErrorStateOutput(err)
	state.EndedAt = time.Now()
}

// RecordBlockSkipped marks a disabled block as skipped with no output.
func (c *ExecutionContext) RecordBlockSkipped(blockID, blockName string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	now := time.Now()
	c.blockStates[blockID] = &BlockState{
		BlockID:   blockID,
		BlockName: blockName,
		Status:    BlockStatusSkipped,
		StartedAt: now,
		EndedAt:   now,
	}
}

func (c *ExecutionContext) ensureStateLocked(blockID string) *BlockState {
	state, ok := c.blockStates[blockID]
	if !ok {
		state = &BlockState{BlockID: blockID, StartedAt: time.Now()}
		c.blockStates[blockID] = state
	}
	return state
}

// ResetBlocks removes the states and decisions of the given blocks so a loop
// iteration can re-execute them.
func (c *ExecutionContext) ResetBlocks(blockIDs []string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, id := range blockIDs {
		delete(c.blockStates, id)
		delete(c.decisions, id)
		delete(c.activePath, id)
	}
}

// BlockState returns a copy of one block's state.
func (c *ExecutionContext) BlockState(blockID string) (*BlockState, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	state, ok := c.blockStates[blockID]
	if !ok {
		return nil, false
	}
	return state.Copy(), true
}

// BlockStates returns a copy of all block states, keyed by block id.
func (c *ExecutionContext) BlockStates() map[string]*BlockState {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	states := make(map[string]*BlockState, len(c.blockStates))
	for id, state := range c.blockStates {
		states[id] = state.Copy()
	}
	return states
}

// MergeBlockState copies a state into the context under the given key. The
// parallel controller uses this to surface per-branch member diagnostics.
func (c *ExecutionContext) MergeBlockState(key string, state *BlockState) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.blockStates[key] = state.Copy()
}

// SetDecision records the branch decision of a condition or router block.
func (c *ExecutionContext) SetDecision(blockID, decision string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.decisions[blockID] = decision
}

// Decision returns the branch decision recorded for a block.
func (c *ExecutionContext) Decision(blockID string) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	decision, ok := c.decisions[blockID]
	return decision, ok
}

// SetPathActive adds or removes a block from the active execution path.
func (c *ExecutionContext) SetPathActive(blockID string, active bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if active {
		c.activePath[blockID] = true
	} else {
		delete(c.activePath, blockID)
	}
}

// OnActivePath reports whether the block is on the active execution path.
func (c *ExecutionContext) OnActivePath(blockID string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.activePath[blockID]
}

// ActivePath returns the sorted ids on the active execution path.
func (c *ExecutionContext) ActivePath() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	ids := make([]string, 0, len(c.activePath))
	for id := range c.activePath {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetLoopScope installs the iteration variables for a grouping.
func (c *ExecutionContext) SetLoopScope(groupID string, scope *LoopScope) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.scopes[groupID] = scope
}

// LoopScope returns the iteration variables of a grouping, if active.
func (c *ExecutionContext) LoopScope(groupID string) (*LoopScope, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	scope, ok := c.scopes[groupID]
	return scope, ok
}

// ClearLoopScope removes a grouping's iteration variables.
func (c *ExecutionContext) ClearLoopScope(groupID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.scopes, groupID)
}

// IncrementIteration advances a grouping's completed-iteration counter and
// returns the new count.
func (c *ExecutionContext) IncrementIteration(groupID string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.iterations[groupID]++
	return c.iterations[groupID]
}

// Iteration returns a grouping's completed-iteration count.
func (c *ExecutionContext) Iteration(groupID string) int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.iterations[groupID]
}

// Child creates an isolated context for one parallel branch. The branch sees a
// snapshot of the parent's block states, environment, variables, decisions and
// enclosing scopes; its own writes stay local until the parallel controller
// merges them back.
func (c *ExecutionContext) Child() *ExecutionContext {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	child := &ExecutionContext{
		runID:       c.runID,
		workflowID:  c.workflowID,
		workspaceID: c.workspaceID,
		depth:       c.depth,
		input:       copyAnyMap(c.input),
		environment: copyStringMap(c.environment),
		variables:   copyAnyMap(c.variables),
		blockStates: make(map[string]*BlockState, len(c.blockStates)),
		activePath:  make(map[string]bool),
		decisions:   make(map[string]string, len(c.decisions)),
		scopes:      make(map[string]*LoopScope, len(c.scopes)),
		iterations:  make(map[string]int),
	}
	for id, state := range c.blockStates {
		child.blockStates[id] = state.Copy()
	}
	for id, decision := range c.decisions {
		child.decisions[id] = decision
	}
	for id, scope := range c.scopes {
		child.scopes[id] = scope
	}
	return child
}

func copyStringMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}

func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
