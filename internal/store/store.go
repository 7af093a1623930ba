// Package store persists per-pipeline run artifacts (plan, patch, review,
// test report, scores) for post-mortem inspection.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// RunRecord is the durable summary of one pipeline run.
type RunRecord struct {
	PipelineID        string   `json:"pipeline_id"`
	Request           string   `json:"request"`
	Status            string   `json:"status"`
	FinalStage        string   `json:"final_stage"`
	Error             string   `json:"error,omitempty"`
	RevisionIteration int      `json:"revision_iteration"`
	TestFailures      int      `json:"test_failures"`
	AppliedFiles      []string `json:"applied_files,omitempty"`
	WorkspaceRoot     string   `json:"workspace_root,omitempty"`
	StartedAt         string   `json:"started_at"`
	CompletedAt       string   `json:"completed_at,omitempty"`
}

// Store manages run artifacts on disk.
type Store struct {
	baseDir string // defaults to ~/.pilot/runs
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.pilot/runs, creating the directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".pilot", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(pipelineID string) string {
	return filepath.Join(s.baseDir, pipelineID)
}

// SaveRecord writes the run summary JSON.
func (s *Store) SaveRecord(rec *RunRecord) error {
	return WriteJSON(filepath.Join(s.runDir(rec.PipelineID), "run.json"), rec)
}

// GetRecord reads the run summary for a pipeline.
func (s *Store) GetRecord(pipelineID string) (*RunRecord, error) {
	var rec RunRecord
	path := filepath.Join(s.runDir(pipelineID), "run.json")
	if err := ReadJSON(path, &rec); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", pipelineID)
		}
		return nil, err
	}
	return &rec, nil
}

// SaveArtifact writes one named stage artifact (plan.json, patch.diff, ...).
func (s *Store) SaveArtifact(pipelineID, name string, data []byte) error {
	return WriteAtomic(filepath.Join(s.runDir(pipelineID), name), data)
}

// GetArtifact reads a named stage artifact.
func (s *Store) GetArtifact(pipelineID, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(pipelineID), name))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// List returns all run records, oldest first.
func (s *Store) List() ([]RunRecord, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var records []RunRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := s.GetRecord(entry.Name())
		if err != nil {
			continue // skip broken entries
		}
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt < records[j].StartedAt
	})
	return records, nil
}

// Delete removes all artifacts for a run.
func (s *Store) Delete(pipelineID string) error {
	dir := s.runDir(pipelineID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("run %s not found", pipelineID)
	}
	return os.RemoveAll(dir)
}
