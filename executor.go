package blockflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blockflow-ai/blockflow/script"
	"go.jetify.com/typeid"
)

// NewRunID returns a new id for run identification
func NewRunID() string {
	id, err := typeid.WithPrefix("run")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// RunStatus represents the run lifecycle
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

// ExecutorOptions configures a new Executor
type ExecutorOptions struct {
	Workflow         *Workflow
	Tools            ToolRegistry
	Handlers         HandlerChain
	CodeRunner       CodeRunner
	ScriptCompiler   script.Compiler
	WorkflowRegistry WorkflowRegistry
	Logger           *slog.Logger
	RunLogger        RunLogger
	RunStore         RunStore
	Callbacks        RunCallbacks
	Formatter        RunFormatter
	MaxConcurrency   int
	WorkspaceID      string
}

// RunOptions configure one run of a workflow
type RunOptions struct {

	// RunID overrides the generated run id, mainly for tests and resumption
	// by external stores.
	RunID string

	// Input is handed to the starter block and referenced as <start.input>.
	Input map[string]any

	// Environment variables referenced as {{NAME}}.
	Environment map[string]string

	// Variables override the workflow's declared variables for this run.
	Variables map[string]any
}

// RunResult is the outcome of one run. It always carries the final block
// states and a terminal status, whether the run completed, failed or was
// cancelled.
type RunResult struct {
	RunID        string                 `json:"run_id"`
	WorkflowName string                 `json:"workflow_name"`
	Status       RunStatus              `json:"status"`
	Output       map[string]any         `json:"output,omitempty"`
	Error        *Error                 `json:"error,omitempty"`
	BlockStates  map[string]*BlockState `json:"block_states"`
	ActivePath   []string               `json:"active_path,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	EndedAt      time.Time              `json:"ended_at"`
}

// Executor runs one workflow definition. It is reusable: every call to
// Execute gets fresh per-run state, but only one run may be in flight at a
// time so the executor's status always describes the current run.
type Executor struct {
	workflow       *Workflow
	tools          ToolRegistry
	handlers       HandlerChain
	runner         CodeRunner
	compiler       script.Compiler
	registry       WorkflowRegistry
	logger         *slog.Logger
	runLogger      RunLogger
	runStore       RunStore
	callbacks      RunCallbacks
	formatter      RunFormatter
	maxConcurrency int
	workspaceID    string

	mutex  sync.RWMutex
	status RunStatus
}

// NewExecutor creates an executor for a workflow
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Workflow == nil {
		return nil, fmt.Errorf("workflow is required")
	}
	if opts.CodeRunner == nil {
		opts.CodeRunner = NewSandboxRunner(SandboxRunnerOptions{})
	}
	if opts.ScriptCompiler == nil {
		opts.ScriptCompiler = script.NewExprEngine()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.RunLogger == nil {
		opts.RunLogger = NewNullRunLogger()
	}
	if opts.RunStore == nil {
		opts.RunStore = NewNullRunStore()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseRunCallbacks{}
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}

	executor := &Executor{
		workflow:       opts.Workflow,
		tools:          opts.Tools,
		handlers:       opts.Handlers,
		runner:         opts.CodeRunner,
		compiler:       opts.ScriptCompiler,
		registry:       opts.WorkflowRegistry,
		logger:         opts.Logger,
		runLogger:      opts.RunLogger,
		runStore:       opts.RunStore,
		callbacks:      opts.Callbacks,
		formatter:      opts.Formatter,
		maxConcurrency: opts.MaxConcurrency,
		workspaceID:    opts.WorkspaceID,
		status:         RunStatusIdle,
	}
	if executor.handlers == nil {
		executor.handlers = HandlerChain{
			NewStarterHandler(),
			NewConditionHandler(executor.workflow, executor.compiler),
			NewRouterHandler(executor.workflow, executor.compiler),
			NewFunctionHandler(executor.workflow, executor.runner),
			NewLoopHandler(executor.workflow, executor),
			NewParallelHandler(executor.workflow, executor),
			NewWorkflowHandler(executor.registry, executor.runChildWorkflow),
			NewGenericHandler(executor.tools, executor.logger),
		}
	}
	return executor, nil
}

// Status returns the executor's current status: idle before the first run,
// running while a run is in flight, and the last run's terminal status
// afterwards.
func (e *Executor) Status() RunStatus {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.status
}

// Execute runs the workflow to completion, blocking until it finishes, fails
// or the context is cancelled. The returned result carries the final block
// states regardless of outcome; the error mirrors result.Error for callers
// that prefer error handling.
func (e *Executor) Execute(ctx context.Context, opts RunOptions) (*RunResult, error) {
	return e.execute(ctx, opts, 0)
}

func (e *Executor) execute(ctx context.Context, opts RunOptions, depth int) (*RunResult, error) {
	if err := e.transitionRunning(); err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = NewRunID()
	}
	logger := e.logger.With("run_id", runID, "workflow", e.workflow.Name())
	ctx = WithLogger(ctx, logger)
	ctx = WithCompiler(ctx, e.compiler)

	variables := e.workflow.Variables()
	for name, value := range opts.Variables {
		variables[name] = value
	}
	ectx := NewExecutionContext(ContextOptions{
		RunID:       runID,
		WorkflowID:  e.workflow.Name(),
		WorkspaceID: e.workspaceID,
		Input:       opts.Input,
		Environment: opts.Environment,
		Variables:   variables,
		Depth:       depth,
	})

	startedAt := time.Now()
	logger.Info("run started", "depth", depth)
	e.callbacks.BeforeRunExecution(ctx, &RunExecutionEvent{
		RunID:        runID,
		WorkflowName: e.workflow.Name(),
		Status:       RunStatusRunning,
		StartTime:    startedAt,
		Input:        copyAnyMap(opts.Input),
		Depth:        depth,
	})

	runErr := e.RunSubgraph(ctx, "", ectx)
	endedAt := time.Now()

	status := RunStatusCompleted
	var werr *Error
	if runErr != nil {
		werr = Classify(runErr)
		if errors.Is(runErr, context.Canceled) || werr.Type == ErrorTypeCancelled {
			status = RunStatusCancelled
		} else {
			status = RunStatusError
		}
	}

	result := &RunResult{
		RunID:        runID,
		WorkflowName: e.workflow.Name(),
		Status:       status,
		Error:        werr,
		BlockStates:  ectx.BlockStates(),
		ActivePath:   ectx.ActivePath(),
		StartedAt:    startedAt,
		EndedAt:      endedAt,
	}
	if status == RunStatusCompleted {
		result.Output = e.runOutput(ectx)
	}

	e.callbacks.AfterRunExecution(ctx, &RunExecutionEvent{
		RunID:        runID,
		WorkflowName: e.workflow.Name(),
		Status:       status,
		StartTime:    startedAt,
		EndTime:      endedAt,
		Duration:     endedAt.Sub(startedAt),
		Input:        copyAnyMap(opts.Input),
		Output:       copyAnyMap(result.Output),
		Depth:        depth,
		Error:        runErr,
	})

	if saveErr := e.runStore.SaveRun(ctx, result); saveErr != nil {
		logger.Error("failed to save run", "error", saveErr)
	}

	e.setStatus(status)
	switch status {
	case RunStatusCompleted:
		logger.Info("run completed", "duration", endedAt.Sub(startedAt))
		return result, nil
	case RunStatusCancelled:
		logger.Warn("run cancelled", "error", runErr)
	default:
		logger.Error("run failed", "error", runErr)
	}
	return result, werr
}

// RunSubgraph executes one scope of the workflow until nothing is ready:
// the top level when groupID is empty, or a grouping's members. Blocks in
// the same layer run concurrently; scheduling decisions happen between
// layers, which is also where cancellation is observed.
func (e *Executor) RunSubgraph(ctx context.Context, groupID string, ectx *ExecutionContext) error {
	sched := newScheduler(e.workflow, groupID)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ready, done := sched.next(ectx)
		if done {
			return nil
		}
		if err := e.runLayer(ctx, ready, ectx); err != nil {
			return err
		}
	}
}

// runLayer executes one layer of ready blocks. Errors surface in ready order
// so concurrent failures resolve deterministically.
func (e *Executor) runLayer(ctx context.Context, ready []string, ectx *ExecutionContext) error {
	if len(ready) == 1 {
		return e.dispatchBlock(ctx, ready[0], ectx)
	}

	sem := make(chan struct{}, e.maxConcurrency)
	results := make([]error, len(ready))
	var wg sync.WaitGroup
	for i, blockID := range ready {
		wg.Add(1)
		go func(i int, blockID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.dispatchBlock(ctx, blockID, ectx)
		}(i, blockID)
	}
	wg.Wait()

	for _, err := range results {
		if err != nil {
			return err
		}
	}
	return nil
}

// dispatchBlock runs one block. A block failure is fatal to the scope unless
// an error edge routes it; either way the failure is recorded in the block's
// state first.
func (e *Executor) dispatchBlock(ctx context.Context, blockID string, ectx *ExecutionContext) error {
	block, ok := e.workflow.GetBlock(blockID)
	if !ok {
		return NewGraphError(fmt.Sprintf("block %q not found", blockID))
	}
	if !block.IsEnabled() {
		ectx.RecordBlockSkipped(block.ID, block.DisplayName())
		e.logger.Debug("block skipped", "run_id", ectx.RunID(), "block_id", block.ID)
		return nil
	}

	if err := e.executeBlock(ctx, block, ectx); err != nil {
		if e.hasErrorRoute(block) {
			return nil
		}
		return err
	}
	return nil
}

// executeBlock drives one block through its lifecycle: resolve inputs,
// validate them, execute the handler, then record the outcome.
func (e *Executor) executeBlock(ctx context.Context, block *Block, ectx *ExecutionContext) error {
	handler, ok := e.handlers.HandlerFor(block)
	if !ok {
		err := NewValidationError(block.ID, block.DisplayName(), "type",
			fmt.Sprintf("no handler for block type %q", block.Type))
		ectx.RecordBlockStart(block.ID, block.DisplayName())
		ectx.RecordBlockError(block.ID, err)
		return err
	}

	ectx.RecordBlockStart(block.ID, block.DisplayName())
	startTime := time.Now()
	event := &BlockExecutionEvent{
		RunID:        ectx.RunID(),
		WorkflowName: e.workflow.Name(),
		BlockID:      block.ID,
		BlockName:    block.DisplayName(),
		BlockType:    block.Type,
		StartTime:    startTime,
	}
	e.callbacks.BeforeBlockExecution(ctx, event)
	if e.formatter != nil {
		e.formatter.PrintBlockStart(block.DisplayName(), block.Type)
	}

	inputs, output, err := e.resolveAndRun(ctx, block, handler, ectx)
	endTime := time.Now()

	var werr *Error
	if err != nil {
		werr = Classify(err)
		if werr.BlockID == "" {
			werr.BlockID = block.ID
		}
		if werr.BlockName == "" {
			werr.BlockName = block.DisplayName()
		}
	}

	logEntry := &BlockLogEntry{
		RunID:        ectx.RunID(),
		WorkflowName: e.workflow.Name(),
		BlockID:      block.ID,
		BlockName:    block.DisplayName(),
		BlockType:    block.Type,
		Inputs:       inputs,
		Output:       output,
		StartTime:    startTime,
		Duration:     endTime.Sub(startTime).Seconds(),
	}
	if werr != nil {
		logEntry.Error = werr.Error()
	}
	if logErr := e.runLogger.LogBlock(ctx, logEntry); logErr != nil && werr == nil {
		werr = Classify(fmt.Errorf("failed to log block execution: %w", logErr))
		werr.BlockID = block.ID
		werr.BlockName = block.DisplayName()
	}

	event.Inputs = inputs
	event.Output = output
	event.EndTime = endTime
	event.Duration = endTime.Sub(startTime)

	if werr != nil {
		ectx.RecordBlockError(block.ID, werr)
		event.Error = werr
		e.callbacks.AfterBlockExecution(ctx, event)
		if e.formatter != nil {
			e.formatter.PrintBlockError(block.DisplayName(), werr)
		}
		e.logger.Error("block failed",
			"run_id", ectx.RunID(),
			"block_id", block.ID,
			"block_type", block.Type,
			"error_type", werr.Type,
			"error", werr.Cause)
		return werr
	}

	ectx.RecordBlockCompleted(block.ID, output)
	e.recordDecision(block, output, ectx)
	e.callbacks.AfterBlockExecution(ctx, event)
	if e.formatter != nil {
		e.formatter.PrintBlockOutput(block.DisplayName(), output)
	}
	e.logger.Debug("block completed",
		"run_id", ectx.RunID(),
		"block_id", block.ID,
		"block_type", block.Type,
		"duration", endTime.Sub(startTime))
	return nil
}

func (e *Executor) resolveAndRun(ctx context.Context, block *Block, handler BlockHandler, ectx *ExecutionContext) (inputs, output map[string]any, err error) {
	resolver := NewResolver(e.workflow, ectx)
	inputs, err = resolver.ResolveInputs(block)
	if err != nil {
		return nil, nil, err
	}
	// The starter validates the run input itself.
	if block.Type != BlockTypeStarter {
		if err := ValidateBlockInputs(block, inputs); err != nil {
			return inputs, nil, err
		}
	}

	if timeout := block.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	output, err = handler.Execute(ctx, block, inputs, ectx)
	return inputs, output, err
}

// recordDecision persists a branching block's choice so the scheduler can
// activate the matching edges. Handlers return decisions in their output
// rather than writing to the context themselves.
func (e *Executor) recordDecision(block *Block, output map[string]any, ectx *ExecutionContext) {
	switch block.Type {
	case BlockTypeCondition:
		handle, _ := output["selectedHandle"].(string)
		ectx.SetDecision(block.ID, handle)
	case BlockTypeRouter:
		target, _ := output["selectedTarget"].(string)
		ectx.SetDecision(block.ID, target)
	}
}

func (e *Executor) hasErrorRoute(block *Block) bool {
	for _, edge := range e.workflow.Outbound(block.ID) {
		if edge.SourceHandle == SourceHandleError {
			return true
		}
	}
	return false
}

// runOutput assembles the run-level output from the completed terminal
// blocks of the top-level graph: the single leaf's output, or a map keyed by
// block id when several leaves completed.
func (e *Executor) runOutput(ectx *ExecutionContext) map[string]any {
	var completed []string
	for _, blockID := range topLevelLeaves(e.workflow) {
		state, ok := ectx.BlockState(blockID)
		if ok && state.Status == BlockStatusCompleted {
			completed = append(completed, blockID)
		}
	}
	switch len(completed) {
	case 0:
		return map[string]any{}
	case 1:
		state, _ := ectx.BlockState(completed[0])
		return state.Output
	default:
		output := make(map[string]any, len(completed))
		for _, blockID := range completed {
			state, _ := ectx.BlockState(blockID)
			output[blockID] = state.Output
		}
		return output
	}
}

// topLevelLeaves returns the non-member blocks with no outgoing edge to
// another non-member block.
func topLevelLeaves(workflow *Workflow) []string {
	var leaves []string
	for _, blockID := range workflow.BlockIDs() {
		if _, member := workflow.GroupOf(blockID); member {
			continue
		}
		leaf := true
		for _, edge := range workflow.Outbound(blockID) {
			if _, member := workflow.GroupOf(edge.To); !member {
				leaf = false
				break
			}
		}
		if leaf {
			leaves = append(leaves, blockID)
		}
	}
	return leaves
}

// runChildWorkflow executes a child workflow with the parent's dependencies.
func (e *Executor) runChildWorkflow(ctx context.Context, workflow *Workflow, opts RunOptions, depth int) (*RunResult, error) {
	child, err := NewExecutor(ExecutorOptions{
		Workflow:         workflow,
		Tools:            e.tools,
		CodeRunner:       e.runner,
		ScriptCompiler:   e.compiler,
		WorkflowRegistry: e.registry,
		Logger:           e.logger,
		RunLogger:        e.runLogger,
		RunStore:         e.runStore,
		Callbacks:        e.callbacks,
		MaxConcurrency:   e.maxConcurrency,
		WorkspaceID:      e.workspaceID,
	})
	if err != nil {
		return nil, err
	}
	return child.execute(ctx, opts, depth)
}

func (e *Executor) transitionRunning() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.status == RunStatusRunning {
		return fmt.Errorf("executor is already running")
	}
	e.status = RunStatusRunning
	return nil
}

func (e *Executor) setStatus(status RunStatus) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.status = status
}
