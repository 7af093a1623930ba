package db

import (
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpen_AppliesSchema(t *testing.T) {
	d := testDB(t)

	tables := []string{"pipeline_events", "stage_runs"}
	for _, table := range tables {
		var name string
		err := d.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestLogPipelineEvent_Events(t *testing.T) {
	d := testDB(t)

	if err := d.LogPipelineEvent("run-1", "pipeline_started", "not_started", ""); err != nil {
		t.Fatalf("log event: %v", err)
	}
	if err := d.LogPipelineEvent("run-1", "patch_applied", "coding", "files=3"); err != nil {
		t.Fatalf("log event: %v", err)
	}
	if err := d.LogPipelineEvent("run-2", "pipeline_started", "not_started", ""); err != nil {
		t.Fatalf("log event: %v", err)
	}

	events, err := d.Events("run-1", 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Event != "pipeline_started" || events[1].Event != "patch_applied" {
		t.Errorf("events out of order: %s, %s", events[0].Event, events[1].Event)
	}
	if events[1].Detail != "files=3" {
		t.Errorf("detail = %q", events[1].Detail)
	}
	if events[1].Stage != "coding" {
		t.Errorf("stage = %q", events[1].Stage)
	}
}

func TestEvents_Limit(t *testing.T) {
	d := testDB(t)

	for i := 0; i < 5; i++ {
		if err := d.LogPipelineEvent("run-1", "tick", "planning", ""); err != nil {
			t.Fatalf("log event: %v", err)
		}
	}

	events, err := d.Events("run-1", 3)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want 3", len(events))
	}
}

func TestEvents_Empty(t *testing.T) {
	d := testDB(t)

	events, err := d.Events("nonexistent", 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestLogStageRun_StageRuns(t *testing.T) {
	d := testDB(t)

	if err := d.LogStageRun("run-1", "planning", "ok", 1500, ""); err != nil {
		t.Fatalf("log stage run: %v", err)
	}
	if err := d.LogStageRun("run-1", "coding", "failed", 9000, "rate limited"); err != nil {
		t.Fatalf("log stage run: %v", err)
	}

	runs, err := d.StageRuns("run-1")
	if err != nil {
		t.Fatalf("stage runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].Stage != "planning" || runs[0].Outcome != "ok" || runs[0].DurationMs != 1500 {
		t.Errorf("run[0] = %+v", runs[0])
	}
	if runs[1].Detail != "rate limited" {
		t.Errorf("run[1].Detail = %q", runs[1].Detail)
	}
}
