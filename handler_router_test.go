package blockflow

import (
	"context"
	"testing"

	"github.com/blockflow-ai/blockflow/script"
	"github.com/stretchr/testify/require"
)

func routerFixture(t *testing.T) (*Workflow, *ExecutionContext, *Block) {
	t.Helper()
	wf := mustWorkflow(t, Options{
		Name: "routing",
		Blocks: []*Block{
			{ID: "start", Type: BlockTypeStarter},
			{ID: "route", Type: BlockTypeRouter},
			{ID: "fast", Type: "echo", Name: "Fast Lane"},
			{ID: "slow", Type: "echo", Name: "Slow Lane"},
		},
		Edges: []*Edge{
			{From: "start", To: "route"},
			{From: "route", To: "fast"},
			{From: "route", To: "slow"},
		},
	})
	ectx := NewExecutionContext(ContextOptions{RunID: "run_1"})
	completeBlock(ectx, "start", map[string]any{"input": map[string]any{"lane": "fast"}})
	return wf, ectx, mustBlock(t, wf, "route")
}

func TestRouterHandlerSelection(t *testing.T) {
	wf, ectx, route := routerFixture(t)
	handler := NewRouterHandler(wf, script.NewExprEngine())
	require.True(t, handler.CanHandle(route))
	require.False(t, handler.CanHandle(&Block{Type: BlockTypeCondition}))

	t.Run("routes by block id", func(t *testing.T) {
		output, err := handler.Execute(context.Background(), route, map[string]any{
			"expression": `"fast"`,
		}, ectx)
		require.NoError(t, err)
		require.Equal(t, "fast", output["selectedTarget"])
		require.Equal(t, "fast", output["result"])
	})

	t.Run("routes by block name", func(t *testing.T) {
		output, err := handler.Execute(context.Background(), route, map[string]any{
			"expression": `"Fast Lane"`,
		}, ectx)
		require.NoError(t, err)
		require.Equal(t, "fast", output["selectedTarget"])
	})

	t.Run("routes from block outputs", func(t *testing.T) {
		output, err := handler.Execute(context.Background(), route, map[string]any{
			"expression": "blocks.start.input.lane",
		}, ectx)
		require.NoError(t, err)
		require.Equal(t, "fast", output["selectedTarget"])
	})
}

func TestRouterHandlerErrors(t *testing.T) {
	wf, ectx, route := routerFixture(t)
	handler := NewRouterHandler(wf, script.NewExprEngine())

	t.Run("expression is required", func(t *testing.T) {
		_, err := handler.Execute(context.Background(), route, map[string]any{}, ectx)
		require.Error(t, err)
		require.Contains(t, err.Error(), "router expression is required")
		require.True(t, MatchesErrorType(err, ErrorTypeValidation))
	})

	t.Run("empty selection fails", func(t *testing.T) {
		_, err := handler.Execute(context.Background(), route, map[string]any{
			"expression": "blocks.start.input.missing",
		}, ectx)
		require.Error(t, err)
		require.Contains(t, err.Error(), "router selected no target")
	})

	t.Run("target must be a direct successor", func(t *testing.T) {
		_, err := handler.Execute(context.Background(), route, map[string]any{
			"expression": `"start"`,
		}, ectx)
		require.Error(t, err)
		require.Contains(t, err.Error(), `router target "start" is not a successor of this block`)
	})

	t.Run("ambiguous target names fail", func(t *testing.T) {
		wf := mustWorkflow(t, Options{
			Name: "ambiguous",
			Blocks: []*Block{
				{ID: "start", Type: BlockTypeStarter},
				{ID: "route", Type: BlockTypeRouter},
				{ID: "l1", Type: "echo", Name: "Lane"},
				{ID: "l2", Type: "echo", Name: "lane"},
			},
			Edges: []*Edge{
				{From: "start", To: "route"},
				{From: "route", To: "l1"},
				{From: "route", To: "l2"},
			},
		})
		handler := NewRouterHandler(wf, script.NewExprEngine())
		route := mustBlock(t, wf, "route")
		ectx := NewExecutionContext(ContextOptions{RunID: "run_1"})

		_, err := handler.Execute(context.Background(), route, map[string]any{
			"expression": `"Lane"`,
		}, ectx)
		require.Error(t, err)
		require.Contains(t, err.Error(), `ambiguous target name "Lane"`)
	})

	t.Run("compile failures are validation errors", func(t *testing.T) {
		_, err := handler.Execute(context.Background(), route, map[string]any{
			"expression": "1 +",
		}, ectx)
		require.Error(t, err)
		require.True(t, MatchesErrorType(err, ErrorTypeValidation))
	})
}

func TestRouterHandlerCompilerFallback(t *testing.T) {
	wf, ectx, route := routerFixture(t)
	handler := NewRouterHandler(wf, nil)
	inputs := map[string]any{"expression": `"slow"`}

	t.Run("falls back to the context compiler", func(t *testing.T) {
		ctx := WithCompiler(context.Background(), script.NewExprEngine())
		output, err := handler.Execute(ctx, route, inputs, ectx)
		require.NoError(t, err)
		require.Equal(t, "slow", output["selectedTarget"])
	})

	t.Run("fails without any compiler", func(t *testing.T) {
		_, err := handler.Execute(context.Background(), route, inputs, ectx)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no script compiler available")
	})
}
