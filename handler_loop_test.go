package blockflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// captureTool records every invocation's params in call order.
type captureTool struct {
	mutex sync.Mutex
	calls []map[string]any
	fail  func(params map[string]any) error
}

func (c *captureTool) Name() string { return "capture" }

func (c *captureTool) Invoke(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
	c.mutex.Lock()
	c.calls = append(c.calls, params)
	c.mutex.Unlock()
	if c.fail != nil {
		if err := c.fail(params); err != nil {
			return nil, err
		}
	}
	return &ToolResult{Success: true, Output: params}, nil
}

func loopWorkflow(t *testing.T, loop *Loop) *Workflow {
	t.Helper()
	return mustWorkflow(t, Options{
		Name: "looping",
		Blocks: []*Block{
			{ID: "start", Type: BlockTypeStarter},
			{ID: "iterate", Type: BlockTypeLoop},
			{ID: "work", Type: "capture", Config: BlockConfig{Params: map[string]any{
				"item":  "<loop.currentItem>",
				"index": "<loop.index>",
			}}},
			{ID: "done", Type: "capture", Config: BlockConfig{Params: map[string]any{
				"results":    "<iterate.results>",
				"iterations": "<iterate.iterations>",
			}}},
		},
		Edges: []*Edge{
			{From: "start", To: "iterate"},
			{From: "iterate", To: "work", SourceHandle: SourceHandleLoopStart},
			{From: "iterate", To: "done", SourceHandle: SourceHandleLoopEnd},
		},
		Loops: map[string]*Loop{"iterate": loop},
	})
}

func TestLoopForEach(t *testing.T) {
	wf := loopWorkflow(t, &Loop{Nodes: []string{"work"}, ForEach: "<start.input.items>"})
	tool := &captureTool{}
	executor, err := NewExecutor(ExecutorOptions{Workflow: wf, Tools: ToolRegistry{"capture": tool}})
	require.NoError(t, err)

	result, err := executor.Execute(context.Background(), RunOptions{
		Input: map[string]any{"items": []any{"a", "b", "c"}},
	})
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, result.Status)

	// Iterations ran strictly in collection order.
	require.Len(t, tool.calls, 4)
	for i, item := range []string{"a", "b", "c"} {
		require.Equal(t, item, tool.calls[i]["item"])
		require.Equal(t, i, tool.calls[i]["index"])
	}

	loopState := result.BlockStates["iterate"]
	require.Equal(t, BlockStatusCompleted, loopState.Status)
	require.Equal(t, 3, loopState.Output["iterations"])
	results, ok := loopState.Output["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 3)
	first, ok := results[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "a", first["item"])

	// The loop-end successor sees the aggregate by reference.
	require.Equal(t, results, result.Output["results"])
	require.Equal(t, 3, result.Output["iterations"])
}

func TestLoopBoundedIterations(t *testing.T) {
	wf := loopWorkflow(t, &Loop{Nodes: []string{"work"}, Iterations: 3})
	tool := &captureTool{}
	executor, err := NewExecutor(ExecutorOptions{Workflow: wf, Tools: ToolRegistry{"capture": tool}})
	require.NoError(t, err)

	result, err := executor.Execute(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, result.Status)
	require.Equal(t, 3, result.BlockStates["iterate"].Output["iterations"])

	// Counted loops have indexes but no items.
	require.Len(t, tool.calls, 4)
	for i := 0; i < 3; i++ {
		require.Equal(t, i, tool.calls[i]["index"])
		require.Nil(t, tool.calls[i]["item"])
	}
}

func TestLoopOverMap(t *testing.T) {
	wf := mustWorkflow(t, Options{
		Name: "mapping",
		Blocks: []*Block{
			{ID: "start", Type: BlockTypeStarter},
			{ID: "iterate", Type: BlockTypeLoop},
			{ID: "work", Type: "capture", Config: BlockConfig{Params: map[string]any{
				"key":   "<loop.currentItem.key>",
				"value": "<loop.currentItem.value>",
			}}},
		},
		Edges: []*Edge{
			{From: "start", To: "iterate"},
			{From: "iterate", To: "work", SourceHandle: SourceHandleLoopStart},
		},
		Loops: map[string]*Loop{"iterate": {
			Nodes:   []string{"work"},
			ForEach: map[string]any{"b": 2, "a": 1},
		}},
	})
	tool := &captureTool{}
	executor, err := NewExecutor(ExecutorOptions{Workflow: wf, Tools: ToolRegistry{"capture": tool}})
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), RunOptions{})
	require.NoError(t, err)

	// Map collections iterate as key/value entries sorted by key.
	require.Len(t, tool.calls, 2)
	require.Equal(t, "a", tool.calls[0]["key"])
	require.Equal(t, 1, tool.calls[0]["value"])
	require.Equal(t, "b", tool.calls[1]["key"])
	require.Equal(t, 2, tool.calls[1]["value"])
}

func TestLoopOverJSONString(t *testing.T) {
	wf := mustWorkflow(t, Options{
		Name: "parsing",
		Blocks: []*Block{
			{ID: "start", Type: BlockTypeStarter},
			{ID: "iterate", Type: BlockTypeLoop},
			{ID: "work", Type: "capture", Config: BlockConfig{Params: map[string]any{
				"item": "<loop.currentItem>",
			}}},
		},
		Edges: []*Edge{
			{From: "start", To: "iterate"},
			{From: "iterate", To: "work", SourceHandle: SourceHandleLoopStart},
		},
		Loops: map[string]*Loop{"iterate": {
			Nodes:   []string{"work"},
			ForEach: `[1, 2, 3]`,
		}},
	})
	tool := &captureTool{}
	executor, err := NewExecutor(ExecutorOptions{Workflow: wf, Tools: ToolRegistry{"capture": tool}})
	require.NoError(t, err)

	result, err := executor.Execute(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, result.BlockStates["iterate"].Output["iterations"])
	require.Len(t, tool.calls, 3)
	require.Equal(t, float64(2), tool.calls[1]["item"])
}

func TestLoopForEachMustBeCollection(t *testing.T) {
	wf := loopWorkflow(t, &Loop{Nodes: []string{"work"}, ForEach: 42})
	executor, err := NewExecutor(ExecutorOptions{Workflow: wf, Tools: ToolRegistry{"capture": &captureTool{}}})
	require.NoError(t, err)

	result, err := executor.Execute(context.Background(), RunOptions{})
	require.Error(t, err)
	require.Equal(t, RunStatusError, result.Status)
	require.Contains(t, err.Error(), "forEach must be a collection, got int")
	require.True(t, MatchesErrorType(err, ErrorTypeValidation))
}

func TestLoopMemberFailure(t *testing.T) {
	wf := loopWorkflow(t, &Loop{Nodes: []string{"work"}, ForEach: "<start.input.items>"})
	tool := &captureTool{
		fail: func(params map[string]any) error {
			if params["item"] == "b" {
				return fmt.Errorf("item %v rejected", params["item"])
			}
			return nil
		},
	}
	executor, err := NewExecutor(ExecutorOptions{Workflow: wf, Tools: ToolRegistry{"capture": tool}})
	require.NoError(t, err)

	result, err := executor.Execute(context.Background(), RunOptions{
		Input: map[string]any{"items": []any{"a", "b", "c"}},
	})
	require.Error(t, err)
	require.Equal(t, RunStatusError, result.Status)

	// The failure carries the member that broke, not the loop block.
	var werr *Error
	require.True(t, errors.As(err, &werr))
	require.Equal(t, "work", werr.BlockID)
	require.Contains(t, werr.Cause, "item b rejected")

	// The second iteration stopped the loop; the third never ran.
	require.Len(t, tool.calls, 2)
	require.Equal(t, BlockStatusError, result.BlockStates["iterate"].Status)
	require.NotContains(t, result.BlockStates, "done")
}
