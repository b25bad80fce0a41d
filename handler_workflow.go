package blockflow

import (
	"context"
	"fmt"
	"sync"
)

// WorkflowRegistry manages the collection of workflow definitions available
// to workflow blocks.
type WorkflowRegistry interface {

	// Register adds a workflow to the registry.
	Register(workflow *Workflow) error

	// Get retrieves a workflow by name.
	Get(name string) (*Workflow, bool)

	// List returns all registered workflow names.
	List() []string
}

// MemoryWorkflowRegistry implements WorkflowRegistry using in-memory storage.
type MemoryWorkflowRegistry struct {
	mutex     sync.RWMutex
	workflows map[string]*Workflow
}

// NewMemoryWorkflowRegistry creates a new in-memory workflow registry.
func NewMemoryWorkflowRegistry() *MemoryWorkflowRegistry {
	return &MemoryWorkflowRegistry{workflows: make(map[string]*Workflow)}
}

// Register adds a workflow to the registry.
func (r *MemoryWorkflowRegistry) Register(workflow *Workflow) error {
	if workflow == nil {
		return fmt.Errorf("workflow cannot be nil")
	}
	if workflow.Name() == "" {
		return fmt.Errorf("workflow name cannot be empty")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.workflows[workflow.Name()] = workflow
	return nil
}

// Get retrieves a workflow by name.
func (r *MemoryWorkflowRegistry) Get(name string) (*Workflow, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	workflow, exists := r.workflows[name]
	return workflow, exists
}

// List returns all registered workflow names.
func (r *MemoryWorkflowRegistry) List() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	return names
}

// ChildRunner executes a child workflow to completion. The executor provides
// one that inherits the parent's tools, code runner and logging.
type ChildRunner func(ctx context.Context, workflow *Workflow, opts RunOptions, depth int) (*RunResult, error)

// maxWorkflowDepth bounds child workflow nesting so mutually referencing
// workflows cannot recurse forever.
const maxWorkflowDepth = 10

// WorkflowHandler executes workflow blocks: it resolves the referenced child
// workflow from the registry, runs it synchronously and surfaces its result
// as the block's output.
type WorkflowHandler struct {
	registry WorkflowRegistry
	runChild ChildRunner
}

// NewWorkflowHandler creates the handler for workflow blocks.
func NewWorkflowHandler(registry WorkflowRegistry, runChild ChildRunner) *WorkflowHandler {
	return &WorkflowHandler{registry: registry, runChild: runChild}
}

func (h *WorkflowHandler) CanHandle(block *Block) bool {
	return block.Type == BlockTypeWorkflow
}

func (h *WorkflowHandler) Execute(ctx context.Context, block *Block, inputs map[string]any, ectx *ExecutionContext) (map[string]any, error) {
	if h.registry == nil {
		return nil, NewValidationError(block.ID, block.DisplayName(), "workflow", "no workflow registry configured")
	}
	name, _ := inputs["workflow"].(string)
	if name == "" {
		return nil, NewValidationError(block.ID, block.DisplayName(), "workflow", "child workflow name is required")
	}
	depth := ectx.Depth() + 1
	if depth > maxWorkflowDepth {
		return nil, NewValidationError(block.ID, block.DisplayName(), "workflow",
			fmt.Sprintf("child workflow depth exceeds %d", maxWorkflowDepth))
	}
	child, ok := h.registry.Get(name)
	if !ok {
		return nil, NewValidationError(block.ID, block.DisplayName(), "workflow",
			fmt.Sprintf("workflow %q not found in registry", name))
	}

	childInput, _ := inputs["input"].(map[string]any)
	result, err := h.runChild(ctx, child, RunOptions{
		Input:       childInput,
		Environment: ectx.Environment(),
	}, depth)
	if result == nil {
		return nil, err
	}

	output := map[string]any{
		"childRunId": result.RunID,
		"status":     string(result.Status),
		"result":     result.Output,
	}
	if result.Status != RunStatusCompleted {
		message := fmt.Sprintf("child workflow %q finished with status %s", name, result.Status)
		if result.Error != nil {
			message = result.Error.Error()
		}
		return nil, NewToolError("child_workflow", block.ID, block.DisplayName(), message, output)
	}
	return output, nil
}
