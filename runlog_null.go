package blockflow

import "context"

// NullRunLogger is a no-op implementation of RunLogger.
type NullRunLogger struct{}

func NewNullRunLogger() *NullRunLogger {
	return &NullRunLogger{}
}

func (l *NullRunLogger) LogBlock(ctx context.Context, entry *BlockLogEntry) error {
	return nil
}

func (l *NullRunLogger) GetBlockHistory(ctx context.Context, runID string) ([]*BlockLogEntry, error) {
	return nil, nil
}
