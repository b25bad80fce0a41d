package blockflow

import (
	"context"
	"time"
)

// RunStore persists finished run results for later inspection.
type RunStore interface {
	// SaveRun persists a run result
	SaveRun(ctx context.Context, result *RunResult) error

	// LoadRun loads a stored run by id. A missing run returns nil, nil.
	LoadRun(ctx context.Context, runID string) (*RunResult, error)

	// DeleteRun removes a stored run
	DeleteRun(ctx context.Context, runID string) error

	// ListRuns returns summaries of stored runs, newest first
	ListRuns(ctx context.Context) ([]*RunSummary, error)
}

// RunSummary is a light view of a stored run
type RunSummary struct {
	RunID        string        `json:"run_id"`
	WorkflowName string        `json:"workflow_name"`
	Status       RunStatus     `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

func summarizeRun(result *RunResult) *RunSummary {
	summary := &RunSummary{
		RunID:        result.RunID,
		WorkflowName: result.WorkflowName,
		Status:       result.Status,
		StartedAt:    result.StartedAt,
		EndedAt:      result.EndedAt,
	}
	if !result.EndedAt.IsZero() {
		summary.Duration = result.EndedAt.Sub(result.StartedAt)
	}
	if result.Error != nil {
		summary.Error = result.Error.Error()
	}
	return summary
}
