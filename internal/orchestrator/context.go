package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// Stage is one phase of the pipeline state machine.
type Stage string

const (
	StageNotStarted       Stage = "not_started"
	StagePlanning         Stage = "planning"
	StageCoding           Stage = "coding"
	StageReviewing        Stage = "reviewing"
	StageTesting          Stage = "testing"
	StageEvaluating       Stage = "evaluating"
	StageCompleted        Stage = "completed"
	StageFailed           Stage = "failed"
	StageAwaitingApproval Stage = "awaiting_approval"
)

// HistoryEntry records one stage transition.
type HistoryEntry struct {
	Stage     Stage     `json:"stage"`
	Previous  Stage     `json:"previous"`
	Timestamp time.Time `json:"timestamp"`
}

// PipelineContext is the mutable state of one pipeline run. It is mutated
// only by the owning orchestrator; callers may retain it for inspection
// after the result is returned.
type PipelineContext struct {
	ID      string `json:"id"`
	Request string `json:"request"`

	CurrentStage Stage `json:"current_stage"`

	// Per-stage output. Plan, TestReport and Scores are set exactly once;
	// Patch and Review are overwritten by the revision loop.
	Plan       string `json:"plan,omitempty"`
	Patch      string `json:"patch,omitempty"`
	Review     string `json:"review,omitempty"`
	TestReport string `json:"test_report,omitempty"`
	Scores     string `json:"scores,omitempty"`

	// History is append-only and grows monotonically; CurrentStage always
	// equals the stage of the last entry (or StageNotStarted when empty).
	History []HistoryEntry `json:"history"`

	RevisionIteration int `json:"revision_iteration"`

	ApprovalRequired bool   `json:"approval_required"`
	ApprovalReason   string `json:"approval_reason,omitempty"`

	TestFailures  int      `json:"test_failures"`
	AppliedFiles  []string `json:"applied_files,omitempty"`
	WorkspaceRoot string   `json:"workspace_root,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// NewContext creates the context for a fresh run with a generated pipeline id.
func NewContext(request string) *PipelineContext {
	return &PipelineContext{
		ID:           uuid.NewString(),
		Request:      request,
		CurrentStage: StageNotStarted,
		StartedAt:    time.Now().UTC(),
	}
}

// AdvanceToStage appends a history entry and moves the context to s.
func (c *PipelineContext) AdvanceToStage(s Stage) {
	c.History = append(c.History, HistoryEntry{
		Stage:     s,
		Previous:  c.CurrentStage,
		Timestamp: time.Now().UTC(),
	})
	c.CurrentStage = s
}

// RequestApproval marks the run as needing human sign-off and parks it in
// the awaiting-approval state.
func (c *PipelineContext) RequestApproval(reason string) {
	c.ApprovalRequired = true
	c.ApprovalReason = reason
	c.AdvanceToStage(StageAwaitingApproval)
}
