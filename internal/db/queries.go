package db

import (
	"fmt"
)

// PipelineEvent represents a row in the pipeline_events table.
type PipelineEvent struct {
	ID         int
	PipelineID string
	Event      string
	Stage      string
	Detail     string
	Timestamp  string
}

// StageRun represents a row in the stage_runs table.
type StageRun struct {
	ID         int
	PipelineID string
	Stage      string
	Outcome    string
	DurationMs int
	Detail     string
	Timestamp  string
}

// LogPipelineEvent inserts a pipeline event.
func (d *DB) LogPipelineEvent(pipelineID, event, stage, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO pipeline_events (pipeline_id, event, stage, detail) VALUES (?, ?, ?, ?)`,
		pipelineID, event, stage, detail,
	)
	if err != nil {
		return fmt.Errorf("log pipeline event: %w", err)
	}
	return nil
}

// LogStageRun inserts a stage run row.
func (d *DB) LogStageRun(pipelineID, stage, outcome string, durationMs int, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO stage_runs (pipeline_id, stage, outcome, duration_ms, detail) VALUES (?, ?, ?, ?, ?)`,
		pipelineID, stage, outcome, durationMs, detail,
	)
	if err != nil {
		return fmt.Errorf("log stage run: %w", err)
	}
	return nil
}

// Events returns the events for a pipeline in chronological order.
func (d *DB) Events(pipelineID string, limit int) ([]PipelineEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.conn.Query(
		`SELECT id, pipeline_id, event, stage, COALESCE(detail, ''), timestamp
		 FROM pipeline_events WHERE pipeline_id = ? ORDER BY id LIMIT ?`,
		pipelineID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []PipelineEvent
	for rows.Next() {
		var e PipelineEvent
		if err := rows.Scan(&e.ID, &e.PipelineID, &e.Event, &e.Stage, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// StageRuns returns the stage runs for a pipeline in chronological order.
func (d *DB) StageRuns(pipelineID string) ([]StageRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, pipeline_id, stage, outcome, COALESCE(duration_ms, 0), COALESCE(detail, ''), timestamp
		 FROM stage_runs WHERE pipeline_id = ? ORDER BY id`,
		pipelineID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage runs: %w", err)
	}
	defer rows.Close()

	var runs []StageRun
	for rows.Next() {
		var r StageRun
		if err := rows.Scan(&r.ID, &r.PipelineID, &r.Stage, &r.Outcome, &r.DurationMs, &r.Detail, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
