package blockflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type transformingTool struct {
	name         string
	invoke       func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error)
	requestErr   error
	responseErr  error
	gotTransform map[string]any
}

func (t *transformingTool) Name() string { return t.name }

func (t *transformingTool) Invoke(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
	return t.invoke(ctx, params, tctx)
}

func (t *transformingTool) TransformRequest(params map[string]any) (map[string]any, error) {
	if t.requestErr != nil {
		return nil, t.requestErr
	}
	out := map[string]any{"wrapped": params}
	t.gotTransform = out
	return out, nil
}

func (t *transformingTool) TransformResponse(output map[string]any) (map[string]any, error) {
	if t.responseErr != nil {
		return nil, t.responseErr
	}
	output["transformed"] = true
	return output, nil
}

func genericFixture() (*Block, *ExecutionContext) {
	block := &Block{ID: "fetch", Type: "http", Name: "Fetch Data"}
	ectx := NewExecutionContext(ContextOptions{
		RunID:       "run_1",
		WorkflowID:  "pipeline",
		WorkspaceID: "ws_1",
	})
	return block, ectx
}

func TestGenericHandlerInvocation(t *testing.T) {
	block, ectx := genericFixture()

	t.Run("invokes the tool named by the block type", func(t *testing.T) {
		var got ToolContext
		registry := ToolRegistry{
			"http": NewToolFunction("http", func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
				got = tctx
				return &ToolResult{Success: true, Output: map[string]any{"status": 200}}, nil
			}),
		}
		handler := NewGenericHandler(registry, nil)
		require.True(t, handler.CanHandle(block))

		output, err := handler.Execute(context.Background(), block, map[string]any{"url": "http://x"}, ectx)
		require.NoError(t, err)
		require.Equal(t, 200, output["status"])

		require.Equal(t, "pipeline", got.WorkflowID)
		require.Equal(t, "ws_1", got.WorkspaceID)
		require.Equal(t, "run_1", got.RunID)
		require.Equal(t, "fetch", got.BlockID)
		require.Equal(t, "Fetch Data", got.BlockName)
		require.NotEmpty(t, got.InvocationID)
	})

	t.Run("config.tool overrides the block type", func(t *testing.T) {
		invoked := false
		registry := ToolRegistry{
			"custom": NewToolFunction("custom", func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
				invoked = true
				return &ToolResult{Success: true, Output: map[string]any{}}, nil
			}),
		}
		handler := NewGenericHandler(registry, nil)
		block := &Block{ID: "b", Type: "http", Config: BlockConfig{Tool: "custom"}}

		_, err := handler.Execute(context.Background(), block, nil, ectx)
		require.NoError(t, err)
		require.True(t, invoked)
	})

	t.Run("unknown tools are validation errors", func(t *testing.T) {
		handler := NewGenericHandler(ToolRegistry{}, nil)
		_, err := handler.Execute(context.Background(), block, nil, ectx)
		require.Error(t, err)
		require.Contains(t, err.Error(), `unknown tool "http"`)
		require.True(t, MatchesErrorType(err, ErrorTypeValidation))
	})

	t.Run("usage is attached to the output", func(t *testing.T) {
		registry := ToolRegistry{
			"http": NewToolFunction("http", func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
				return &ToolResult{
					Success: true,
					Output:  map[string]any{"ok": true},
					Usage:   &Usage{TotalTokens: 12},
				}, nil
			}),
		}
		handler := NewGenericHandler(registry, nil)
		output, err := handler.Execute(context.Background(), block, nil, ectx)
		require.NoError(t, err)
		usage, ok := output["usage"].(*Usage)
		require.True(t, ok)
		require.Equal(t, 12, usage.TotalTokens)
	})
}

func TestGenericHandlerFailures(t *testing.T) {
	block, ectx := genericFixture()

	t.Run("tool errors become tool failures", func(t *testing.T) {
		registry := ToolRegistry{
			"http": NewToolFunction("http", func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
				return nil, errors.New("connection refused")
			}),
		}
		handler := NewGenericHandler(registry, nil)
		_, err := handler.Execute(context.Background(), block, nil, ectx)
		require.Error(t, err)

		var werr *Error
		require.True(t, errors.As(err, &werr))
		require.Equal(t, ErrorTypeTool, werr.Type)
		require.Equal(t, "http", werr.ToolID)
		require.Contains(t, werr.Error(), "connection refused")
	})

	t.Run("reported failures keep the raw output", func(t *testing.T) {
		registry := ToolRegistry{
			"http": NewToolFunction("http", func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
				return &ToolResult{
					Success: false,
					Error:   "upstream returned 503",
					Output:  map[string]any{"statusCode": 503},
				}, nil
			}),
		}
		handler := NewGenericHandler(registry, nil)
		_, err := handler.Execute(context.Background(), block, nil, ectx)
		require.Error(t, err)

		var werr *Error
		require.True(t, errors.As(err, &werr))
		require.Contains(t, werr.Cause, "upstream returned 503")
		require.Equal(t, map[string]any{"statusCode": 503}, werr.Output)
	})

	t.Run("reported failures without a message get a default", func(t *testing.T) {
		registry := ToolRegistry{
			"http": NewToolFunction("http", func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
				return &ToolResult{Success: false}, nil
			}),
		}
		handler := NewGenericHandler(registry, nil)
		_, err := handler.Execute(context.Background(), block, nil, ectx)
		require.Error(t, err)
		require.Contains(t, err.Error(), "tool reported failure")
	})

	t.Run("deadline errors are classified as timeouts", func(t *testing.T) {
		registry := ToolRegistry{
			"http": NewToolFunction("http", func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
				return nil, context.DeadlineExceeded
			}),
		}
		handler := NewGenericHandler(registry, nil)
		_, err := handler.Execute(context.Background(), block, nil, ectx)
		require.Error(t, err)
		require.True(t, MatchesErrorType(err, ErrorTypeTimeout))
	})

	t.Run("cancellations keep their type", func(t *testing.T) {
		registry := ToolRegistry{
			"http": NewToolFunction("http", func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
				return nil, context.Canceled
			}),
		}
		handler := NewGenericHandler(registry, nil)
		_, err := handler.Execute(context.Background(), block, nil, ectx)
		require.Error(t, err)
		require.True(t, MatchesErrorType(err, ErrorTypeCancelled))
	})
}

func TestGenericHandlerTransforms(t *testing.T) {
	block, ectx := genericFixture()

	t.Run("request and response transforms apply", func(t *testing.T) {
		tool := &transformingTool{name: "http"}
		tool.invoke = func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
			wrapped, ok := params["wrapped"].(map[string]any)
			require.True(t, ok)
			return &ToolResult{Success: true, Output: map[string]any{"echo": wrapped["url"]}}, nil
		}
		handler := NewGenericHandler(ToolRegistry{"http": tool}, nil)

		output, err := handler.Execute(context.Background(), block, map[string]any{"url": "http://x"}, ectx)
		require.NoError(t, err)
		require.Equal(t, "http://x", output["echo"])
		require.Equal(t, true, output["transformed"])
	})

	t.Run("request transform failures fail the block", func(t *testing.T) {
		tool := &transformingTool{name: "http", requestErr: errors.New("bad shape")}
		handler := NewGenericHandler(ToolRegistry{"http": tool}, nil)

		_, err := handler.Execute(context.Background(), block, nil, ectx)
		require.Error(t, err)
		require.Contains(t, err.Error(), "request transform failed: bad shape")
	})

	t.Run("response transform failures fail the block", func(t *testing.T) {
		tool := &transformingTool{name: "http", responseErr: errors.New("bad response")}
		tool.invoke = func(ctx context.Context, params map[string]any, tctx ToolContext) (*ToolResult, error) {
			return &ToolResult{Success: true, Output: map[string]any{}}, nil
		}
		handler := NewGenericHandler(ToolRegistry{"http": tool}, nil)

		_, err := handler.Execute(context.Background(), block, nil, ectx)
		require.Error(t, err)
		require.Contains(t, err.Error(), "response transform failed: bad response")
	})
}

func TestStarterHandler(t *testing.T) {
	handler := NewStarterHandler()
	block := &Block{ID: "start", Type: BlockTypeStarter}

	t.Run("publishes the run input", func(t *testing.T) {
		ectx := NewExecutionContext(ContextOptions{
			RunID: "run_1",
			Input: map[string]any{"n": 6},
		})
		output, err := handler.Execute(context.Background(), block, nil, ectx)
		require.NoError(t, err)
		require.Equal(t, map[string]any{"input": map[string]any{"n": 6}}, output)
	})

	t.Run("missing input becomes an empty map", func(t *testing.T) {
		ectx := NewExecutionContext(ContextOptions{RunID: "run_1"})
		output, err := handler.Execute(context.Background(), block, nil, ectx)
		require.NoError(t, err)
		require.Equal(t, map[string]any{"input": map[string]any{}}, output)
	})

	t.Run("validates the input against the block schema", func(t *testing.T) {
		schema := &Block{ID: "start", Type: BlockTypeStarter, InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"name"},
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
		}}
		ectx := NewExecutionContext(ContextOptions{RunID: "run_1", Input: map[string]any{}})
		_, err := handler.Execute(context.Background(), schema, nil, ectx)
		require.Error(t, err)
		require.True(t, MatchesErrorType(err, ErrorTypeValidation))
	})
}
