package blockflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

const runsTableDDL = `
CREATE TABLE IF NOT EXISTS workflow_runs (
	run_id        TEXT PRIMARY KEY,
	workflow_name TEXT NOT NULL,
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	result        JSONB NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL
)`

// PostgresRunStore persists run results in a Postgres table. Results are
// stored whole as JSONB with a few indexed columns for listing.
type PostgresRunStore struct {
	db *sql.DB
}

// NewPostgresRunStore connects to Postgres and creates the runs table if it
// does not exist yet.
func NewPostgresRunStore(ctx context.Context, dsn string) (*PostgresRunStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, runsTableDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}
	return &PostgresRunStore{db: db}, nil
}

// Close releases the underlying database connections.
func (s *PostgresRunStore) Close() error {
	return s.db.Close()
}

// SaveRun upserts the run result
func (s *PostgresRunStore) SaveRun(ctx context.Context, result *RunResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	errorMessage := ""
	if result.Error != nil {
		errorMessage = result.Error.Error()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (run_id, workflow_name, status, error_message, result, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET
			workflow_name = EXCLUDED.workflow_name,
			status        = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			result        = EXCLUDED.result,
			started_at    = EXCLUDED.started_at,
			ended_at      = EXCLUDED.ended_at`,
		result.RunID, result.WorkflowName, string(result.Status), errorMessage, data, result.StartedAt, result.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LoadRun loads a stored run by id
func (s *PostgresRunStore) LoadRun(ctx context.Context, runID string) (*RunResult, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM workflow_runs WHERE run_id = $1`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	var result RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &result, nil
}

// DeleteRun removes a stored run
func (s *PostgresRunStore) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_runs WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// ListRuns returns summaries of stored runs, newest first
func (s *PostgresRunStore) ListRuns(ctx context.Context) ([]*RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, workflow_name, status, error_message, started_at, ended_at
		FROM workflow_runs
		ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []*RunSummary
	for rows.Next() {
		var summary RunSummary
		var status string
		if err := rows.Scan(&summary.RunID, &summary.WorkflowName, &status,
			&summary.Error, &summary.StartedAt, &summary.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		summary.Status = RunStatus(status)
		if !summary.EndedAt.IsZero() {
			summary.Duration = summary.EndedAt.Sub(summary.StartedAt)
		}
		summaries = append(summaries, &summary)
	}
	return summaries, rows.Err()
}
