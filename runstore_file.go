package blockflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileRunStore is a file-based implementation that persists run results to
// disk, one JSON file per run.
type FileRunStore struct {
	dataDir string
}

// NewFileRunStore creates a new file-based run store
func NewFileRunStore(dataDir string) (*FileRunStore, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".blockflow", "runs")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &FileRunStore{dataDir: dataDir}, nil
}

func (s *FileRunStore) runPath(runID string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s.json", runID))
}

// SaveRun persists the run result to disk
func (s *FileRunStore) SaveRun(ctx context.Context, result *RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := os.WriteFile(s.runPath(result.RunID), data, 0644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}
	return nil
}

// LoadRun loads a stored run by id
func (s *FileRunStore) LoadRun(ctx context.Context, runID string) (*RunResult, error) {
	data, err := os.ReadFile(s.runPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	var result RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &result, nil
}

// DeleteRun removes a stored run
func (s *FileRunStore) DeleteRun(ctx context.Context, runID string) error {
	if err := os.Remove(s.runPath(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete run file: %w", err)
	}
	return nil
}

// ListRuns returns summaries of all stored runs, newest first
func (s *FileRunStore) ListRuns(ctx context.Context) ([]*RunSummary, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*RunSummary{}, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var summaries []*RunSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		runID := strings.TrimSuffix(entry.Name(), ".json")
		result, err := s.LoadRun(ctx, runID)
		if err != nil || result == nil {
			// Skip runs we can't read
			continue
		}
		summaries = append(summaries, summarizeRun(result))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	return summaries, nil
}
