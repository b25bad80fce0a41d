package blockflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPostgresRunLogger(t *testing.T) {
	dsn := postgresDSN(t)
	ctx := context.Background()
	dropTables(t, ctx, dsn, "block_logs")

	logger, err := NewPostgresRunLogger(ctx, dsn)
	require.NoError(t, err)
	defer logger.Close()

	start := time.Now().UTC().Truncate(time.Second)
	entries := []*BlockLogEntry{
		{
			RunID:     "run_1",
			BlockID:   "start",
			BlockType: "starter",
			Output:    map[string]any{"input": map[string]any{}},
			StartTime: start,
			Duration:  0.01,
		},
		{
			RunID:     "run_1",
			BlockID:   "calc",
			BlockName: "Calc Numbers",
			BlockType: "function",
			Inputs:    map[string]any{"code": "1 + 1"},
			Output:    map[string]any{"result": float64(2)},
			Error:     "",
			StartTime: start.Add(time.Second),
			Duration:  0.2,
		},
		{
			RunID:     "run_2",
			BlockID:   "other",
			BlockType: "starter",
			StartTime: start,
		},
	}
	for _, entry := range entries {
		require.NoError(t, logger.LogBlock(ctx, entry))
	}

	history, err := logger.GetBlockHistory(ctx, "run_1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "start", history[0].BlockID)
	require.Equal(t, "calc", history[1].BlockID)
	require.Equal(t, "Calc Numbers", history[1].BlockName)
	require.Equal(t, map[string]any{"code": "1 + 1"}, history[1].Inputs)
	require.Equal(t, map[string]any{"result": float64(2)}, history[1].Output)
	require.True(t, history[0].StartTime.Equal(start))
	require.Equal(t, 0.2, history[1].Duration)

	// Unknown runs simply have no history.
	history, err = logger.GetBlockHistory(ctx, "run_missing")
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestPostgresRunLoggerOrdersByStartTime(t *testing.T) {
	dsn := postgresDSN(t)
	ctx := context.Background()
	dropTables(t, ctx, dsn, "block_logs")

	logger, err := NewPostgresRunLogger(ctx, dsn)
	require.NoError(t, err)
	defer logger.Close()

	base := time.Now().UTC().Truncate(time.Second)
	// Inserted out of order on purpose.
	require.NoError(t, logger.LogBlock(ctx, &BlockLogEntry{RunID: "run_1", BlockID: "late", BlockType: "function", StartTime: base.Add(2 * time.Second)}))
	require.NoError(t, logger.LogBlock(ctx, &BlockLogEntry{RunID: "run_1", BlockID: "early", BlockType: "starter", StartTime: base}))

	history, err := logger.GetBlockHistory(ctx, "run_1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "early", history[0].BlockID)
	require.Equal(t, "late", history[1].BlockID)
}
