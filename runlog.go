package blockflow

import (
	"context"
	"time"
)

// BlockLogEntry represents a single block execution log entry
type BlockLogEntry struct {
	RunID        string         `json:"run_id"`
	WorkflowName string         `json:"workflow_name,omitempty"`
	BlockID      string         `json:"block_id"`
	BlockName    string         `json:"block_name,omitempty"`
	BlockType    string         `json:"block_type"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	StartTime    time.Time      `json:"start_time"`
	Duration     float64        `json:"duration"`
}

// RunLogger defines simple block execution logging interface
type RunLogger interface {
	// LogBlock logs a completed block execution
	LogBlock(ctx context.Context, entry *BlockLogEntry) error

	// GetBlockHistory retrieves the block log for a run
	GetBlockHistory(ctx context.Context, runID string) ([]*BlockLogEntry, error)
}
