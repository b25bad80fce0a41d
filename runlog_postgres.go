package blockflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

const blockLogsTableDDL = `
CREATE TABLE IF NOT EXISTS block_logs (
	id            BIGSERIAL PRIMARY KEY,
	run_id        TEXT NOT NULL,
	workflow_name TEXT NOT NULL DEFAULT '',
	block_id      TEXT NOT NULL,
	block_name    TEXT NOT NULL DEFAULT '',
	block_type    TEXT NOT NULL,
	inputs        JSONB,
	output        JSONB,
	error         TEXT NOT NULL DEFAULT '',
	start_time    TIMESTAMPTZ NOT NULL,
	duration      DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS block_logs_run_id_idx ON block_logs (run_id)`

// PostgresRunLogger writes block execution logs to a Postgres table, one row
// per block execution.
type PostgresRunLogger struct {
	db *sql.DB
}

// NewPostgresRunLogger connects to Postgres and creates the log table if it
// does not exist yet.
func NewPostgresRunLogger(ctx context.Context, dsn string) (*PostgresRunLogger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, blockLogsTableDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create block logs table: %w", err)
	}
	return &PostgresRunLogger{db: db}, nil
}

// Close releases the underlying database connections.
func (l *PostgresRunLogger) Close() error {
	return l.db.Close()
}

// LogBlock inserts one block execution row
func (l *PostgresRunLogger) LogBlock(ctx context.Context, entry *BlockLogEntry) error {
	inputs, err := json.Marshal(entry.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal block inputs: %w", err)
	}
	output, err := json.Marshal(entry.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal block output: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO block_logs (run_id, workflow_name, block_id, block_name, block_type, inputs, output, error, start_time, duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.RunID, entry.WorkflowName, entry.BlockID, entry.BlockName, entry.BlockType,
		inputs, output, entry.Error, entry.StartTime, entry.Duration)
	if err != nil {
		return fmt.Errorf("failed to log block execution: %w", err)
	}
	return nil
}

// GetBlockHistory returns a run's block log in execution order
func (l *PostgresRunLogger) GetBlockHistory(ctx context.Context, runID string) ([]*BlockLogEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, workflow_name, block_id, block_name, block_type, inputs, output, error, start_time, duration
		FROM block_logs
		WHERE run_id = $1
		ORDER BY start_time, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query block logs: %w", err)
	}
	defer rows.Close()

	var entries []*BlockLogEntry
	for rows.Next() {
		var entry BlockLogEntry
		var inputs, output []byte
		if err := rows.Scan(&entry.RunID, &entry.WorkflowName, &entry.BlockID, &entry.BlockName,
			&entry.BlockType, &inputs, &output, &entry.Error, &entry.StartTime, &entry.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan block log: %w", err)
		}
		if len(inputs) > 0 {
			if err := json.Unmarshal(inputs, &entry.Inputs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal block inputs: %w", err)
			}
		}
		if len(output) > 0 {
			if err := json.Unmarshal(output, &entry.Output); err != nil {
				return nil, fmt.Errorf("failed to unmarshal block output: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
