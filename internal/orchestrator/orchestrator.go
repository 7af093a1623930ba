// Package orchestrator drives a request through the five-stage pipeline:
// plan, code, review, test, evaluate. Stages run strictly in order; a stage
// failure terminates the run at that stage.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/patchwork-labs/pilot/internal/agent"
	"github.com/patchwork-labs/pilot/internal/approval"
	"github.com/patchwork-labs/pilot/internal/buildcheck"
	"github.com/patchwork-labs/pilot/internal/db"
	"github.com/patchwork-labs/pilot/internal/diffparse"
	"github.com/patchwork-labs/pilot/internal/patch"
	"github.com/patchwork-labs/pilot/internal/plan"
	"github.com/patchwork-labs/pilot/internal/store"
	"github.com/patchwork-labs/pilot/internal/verdict"
	"github.com/patchwork-labs/pilot/internal/workspace"
)

// Status classifies how a run ended.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusPassedWithWarnings Status = "passed_with_warnings"
	StatusFailed             Status = "failed"
	StatusAwaitingApproval   Status = "awaiting_approval"
)

// Default loop bounds. Each has exactly one override point: Caps on Options.
const (
	defaultMaxRevisions     = 2
	defaultMaxAutoFixRounds = 5
	defaultScoreThreshold   = 7.0
)

// Caps bounds the pipeline's loops and the evaluator acceptance gate.
// Zero fields take the defaults.
type Caps struct {
	MaxRevisions     int
	MaxAutoFixRounds int
	ScoreThreshold   float64
}

func (c Caps) withDefaults() Caps {
	if c.MaxRevisions <= 0 {
		c.MaxRevisions = defaultMaxRevisions
	}
	if c.MaxAutoFixRounds <= 0 {
		c.MaxAutoFixRounds = defaultMaxAutoFixRounds
	}
	if c.ScoreThreshold <= 0 {
		c.ScoreThreshold = defaultScoreThreshold
	}
	return c
}

// Agents holds one agent per pipeline stage.
type Agents struct {
	Planner   agent.Agent
	Coder     agent.Agent
	Reviewer  agent.Agent
	Tester    agent.Agent
	Evaluator agent.Agent
}

// Options configures a pipeline run. Events, Artifacts and Build are
// optional; persistence is best-effort and never fails a run.
type Options struct {
	BaseDir           string
	WorkspaceKind     workspace.Kind
	SourceRepo        string
	PreserveOnFailure bool
	Caps              Caps
	Progress          io.Writer
	Events            *db.DB
	Artifacts         *store.Store
	Build             *buildcheck.Validator
}

// RunResult is the terminal outcome of one pipeline run.
type RunResult struct {
	Status     Status
	FinalStage Stage
	Err        string
	Duration   time.Duration
	Context    *PipelineContext
}

// Orchestrator runs pipelines. Safe to reuse across runs; each run gets its
// own context and workspace.
type Orchestrator struct {
	agents Agents
	opts   Options
	caps   Caps
}

// New creates an orchestrator with the given agents and options.
func New(agents Agents, opts Options) *Orchestrator {
	if opts.WorkspaceKind == "" {
		opts.WorkspaceKind = workspace.Production
	}
	return &Orchestrator{
		agents: agents,
		opts:   opts,
		caps:   opts.Caps.withDefaults(),
	}
}

// Run executes the full pipeline for a change request. The returned result
// is never nil. Cancellation is honored at stage boundaries: the stage in
// flight finishes, then the run fails.
func (o *Orchestrator) Run(ctx context.Context, request string) *RunResult {
	pc := NewContext(request)
	o.logf("pipeline %s started", pc.ID)
	o.event(pc, "pipeline_started", "")

	ws, err := workspace.Create(pc.ID, o.opts.BaseDir, o.opts.WorkspaceKind)
	if err != nil {
		return o.fail(pc, nil, fmt.Sprintf("create workspace: %v", err))
	}
	pc.WorkspaceRoot = ws.Root()

	if o.opts.SourceRepo != "" {
		if err := ws.Stage(o.opts.SourceRepo); err != nil {
			return o.fail(pc, ws, fmt.Sprintf("stage source repo: %v", err))
		}
	}
	structure, err := ws.Analyze()
	if err != nil {
		structure = &workspace.Structure{}
	}

	// Planning
	if msg := cancelMessage(ctx, pc); msg != "" {
		return o.fail(pc, ws, msg)
	}
	pc.AdvanceToStage(StagePlanning)
	out, err := o.invoke(ctx, o.agents.Planner, pc, StagePlanning, planningPrompt(request, structure))
	if err != nil {
		return o.fail(pc, ws, fmt.Sprintf("planning: %v", err))
	}
	pc.Plan = out
	o.artifact(pc, "plan.json", out)
	if _, err := plan.Parse(out); err != nil {
		return o.fail(pc, ws, fmt.Sprintf("plan validation: %v", err))
	}

	decision := approval.Evaluate(out)
	if decision.Required {
		pc.RequestApproval(decision.Reason)
		o.logf("pipeline %s awaiting approval: %s", pc.ID, decision.Reason)
		o.event(pc, "approval_required", decision.Reason)
		return o.finish(pc, StatusAwaitingApproval, "")
	}

	// Coding
	if msg := cancelMessage(ctx, pc); msg != "" {
		return o.fail(pc, ws, msg)
	}
	pc.AdvanceToStage(StageCoding)
	out, err = o.invoke(ctx, o.agents.Coder, pc, StageCoding, codingPrompt(pc.Plan, structure, ""))
	if err != nil {
		return o.fail(pc, ws, fmt.Sprintf("coding: %v", err))
	}
	pc.Patch = out
	o.artifact(pc, "patch.txt", out)
	if err := o.applyOutput(ws, pc, out); err != nil {
		return o.fail(pc, ws, err.Error())
	}
	if err := o.compileCheck(ctx, ws); err != nil {
		return o.fail(pc, ws, err.Error())
	}

	// Reviewing, with a bounded revision loop back through coding.
	if msg := cancelMessage(ctx, pc); msg != "" {
		return o.fail(pc, ws, msg)
	}
	pc.AdvanceToStage(StageReviewing)
	out, err = o.invoke(ctx, o.agents.Reviewer, pc, StageReviewing, reviewPrompt(pc.Plan, pc.Patch))
	if err != nil {
		return o.fail(pc, ws, fmt.Sprintf("reviewing: %v", err))
	}
	pc.Review = out
	rv := verdict.ParseReview(out)

	for rv.Verdict == verdict.Revise && pc.RevisionIteration < o.caps.MaxRevisions {
		pc.RevisionIteration++
		o.logf("pipeline %s revision %d of %d", pc.ID, pc.RevisionIteration, o.caps.MaxRevisions)
		o.event(pc, "revision_started", fmt.Sprintf("iteration=%d", pc.RevisionIteration))

		if msg := cancelMessage(ctx, pc); msg != "" {
			return o.fail(pc, ws, msg)
		}
		pc.AdvanceToStage(StageCoding)
		out, err = o.invoke(ctx, o.agents.Coder, pc, StageCoding, codingPrompt(pc.Plan, structure, pc.Review))
		if err != nil {
			return o.fail(pc, ws, fmt.Sprintf("coding (revision %d): %v", pc.RevisionIteration, err))
		}
		pc.Patch = out
		o.artifact(pc, fmt.Sprintf("patch.rev%d.txt", pc.RevisionIteration), out)

		ws.Rollback()
		if err := o.applyOutput(ws, pc, out); err != nil {
			return o.fail(pc, ws, err.Error())
		}

		if msg := cancelMessage(ctx, pc); msg != "" {
			return o.fail(pc, ws, msg)
		}
		pc.AdvanceToStage(StageReviewing)
		out, err = o.invoke(ctx, o.agents.Reviewer, pc, StageReviewing, reviewPrompt(pc.Plan, pc.Patch))
		if err != nil {
			return o.fail(pc, ws, fmt.Sprintf("reviewing (revision %d): %v", pc.RevisionIteration, err))
		}
		pc.Review = out
		rv = verdict.ParseReview(out)
	}
	o.artifact(pc, "review.json", pc.Review)

	switch rv.Verdict {
	case verdict.Approve:
	case verdict.Reject:
		return o.fail(pc, ws, fmt.Sprintf("review verdict REJECT: %s", rv.Summary))
	case verdict.Revise:
		return o.fail(pc, ws, fmt.Sprintf(
			"Maximum revision iterations (%d) reached with review still requesting changes", o.caps.MaxRevisions))
	default:
		return o.fail(pc, ws, "review verdict unrecognized; refusing to proceed")
	}

	// Testing. Failures are recorded but do not terminate the run; the
	// evaluator weighs them.
	if msg := cancelMessage(ctx, pc); msg != "" {
		return o.fail(pc, ws, msg)
	}
	pc.AdvanceToStage(StageTesting)
	out, err = o.invoke(ctx, o.agents.Tester, pc, StageTesting, testingPrompt(structure, pc.AppliedFiles))
	if err != nil {
		return o.fail(pc, ws, fmt.Sprintf("testing: %v", err))
	}
	pc.TestReport = out
	o.artifact(pc, "test_report.json", out)
	summary := verdict.ParseTestReport(out)
	pc.TestFailures = summary.Failed
	if !summary.Pass {
		o.logf("pipeline %s: %d test failure(s) recorded", pc.ID, summary.Failed)
		o.event(pc, "tests_failed", fmt.Sprintf("failed=%d", summary.Failed))
	}

	// Evaluating
	if msg := cancelMessage(ctx, pc); msg != "" {
		return o.fail(pc, ws, msg)
	}
	pc.AdvanceToStage(StageEvaluating)
	out, err = o.invoke(ctx, o.agents.Evaluator, pc, StageEvaluating, evaluationPrompt(pc))
	if err != nil {
		return o.fail(pc, ws, fmt.Sprintf("evaluating: %v", err))
	}
	pc.Scores = out
	o.artifact(pc, "scores.json", out)
	ev, err := verdict.ParseEvaluation(out)
	if err != nil {
		return o.fail(pc, ws, fmt.Sprintf("evaluation parse: %v", err))
	}
	if ev.FinalVerdict == verdict.Reject || ev.OverallScore < o.caps.ScoreThreshold {
		return o.fail(pc, ws, fmt.Sprintf(
			"evaluation gate: score %.1f (threshold %.1f), verdict %s",
			ev.OverallScore, o.caps.ScoreThreshold, ev.FinalVerdict))
	}

	pc.AdvanceToStage(StageCompleted)
	status := StatusSuccess
	if pc.TestFailures > 0 {
		status = StatusPassedWithWarnings
	}
	o.logf("pipeline %s completed: %s", pc.ID, status)
	return o.finish(pc, status, "")
}

// applyOutput applies the coder's output to the workspace and validates file
// placement. It accepts either the JSON file-operations envelope or a
// unified diff.
func (o *Orchestrator) applyOutput(ws *workspace.Workspace, pc *PipelineContext, output string) error {
	ops, err := patch.ParseOperations(output)
	switch {
	case err == nil:
		if _, err := ws.ApplyOperations(ops); err != nil {
			return fmt.Errorf("apply file operations: %w", err)
		}
	case errors.Is(err, patch.ErrNoOperations):
		parsed, perr := diffparse.Parse(output)
		if perr != nil {
			return fmt.Errorf("coder output is neither file operations nor a unified diff: %w", perr)
		}
		if _, err := ws.ApplyPatch(parsed); err != nil {
			return fmt.Errorf("apply patch: %w", err)
		}
	default:
		return fmt.Errorf("parse file operations: %w", err)
	}

	pc.AppliedFiles = ws.AppliedFiles()
	o.event(pc, "patch_applied", fmt.Sprintf("files=%d", len(pc.AppliedFiles)))
	if err := ws.ValidatePlacement(pc.AppliedFiles); err != nil {
		return fmt.Errorf("structural validation: %w", err)
	}
	return nil
}

// compileCheck runs build validation with auto-fix on production workspaces.
// Test workspaces skip compilation entirely.
func (o *Orchestrator) compileCheck(ctx context.Context, ws *workspace.Workspace) error {
	if ws.Kind() != workspace.Production {
		return nil
	}
	v := o.opts.Build
	if v == nil {
		if err := buildcheck.EnsureInitialized(); err != nil {
			return err
		}
		v = buildcheck.NewValidator(&buildcheck.ExecRunner{})
	}
	res, report, err := v.ValidateAndFix(ctx, ws.Root(), o.caps.MaxAutoFixRounds)
	if err != nil {
		return fmt.Errorf("compilation check: %w", err)
	}
	if !res.Passed {
		return fmt.Errorf("compilation failed after %d auto-fix round(s):\n%s", report.Rounds, res.Output)
	}
	if report.Rounds > 0 {
		o.logf("auto-fix resolved build in %d round(s), %d using(s) inserted", report.Rounds, len(report.Insertions))
	}
	return nil
}

func (o *Orchestrator) invoke(ctx context.Context, a agent.Agent, pc *PipelineContext, stage Stage, prompt string) (string, error) {
	if a == nil {
		return "", fmt.Errorf("no agent configured for stage %s", stage)
	}
	o.logf("stage %s: invoking agent", stage)
	start := time.Now()
	res, err := a.Execute(ctx, agent.Input{
		Prompt: prompt,
		Context: agent.Context{
			WorkspaceRoot:     pc.WorkspaceRoot,
			PipelineID:        pc.ID,
			Stage:             string(stage),
			RevisionIteration: pc.RevisionIteration,
		},
	})
	elapsed := time.Since(start)
	if err != nil {
		o.stageRun(pc, stage, "error", elapsed, err.Error())
		return "", err
	}
	if !res.Success {
		msg := res.ErrorMessage
		if msg == "" {
			msg = "agent reported failure without detail"
		}
		o.stageRun(pc, stage, "failed", elapsed, msg)
		return "", errors.New(msg)
	}
	o.stageRun(pc, stage, "ok", elapsed, "")
	return res.Output, nil
}

// fail terminates the run at the current stage. The workspace is removed
// unless preservation is requested; awaiting-approval runs never come
// through here and always keep their workspace.
func (o *Orchestrator) fail(pc *PipelineContext, ws *workspace.Workspace, msg string) *RunResult {
	pc.AdvanceToStage(StageFailed)
	o.logf("pipeline %s failed: %s", pc.ID, msg)
	if ws != nil && !o.opts.PreserveOnFailure {
		ws.Cleanup()
	}
	return o.finish(pc, StatusFailed, msg)
}

func (o *Orchestrator) finish(pc *PipelineContext, status Status, errMsg string) *RunResult {
	pc.CompletedAt = time.Now().UTC()
	o.event(pc, "pipeline_finished", string(status))
	o.persistRecord(pc, status, errMsg)
	return &RunResult{
		Status:     status,
		FinalStage: pc.CurrentStage,
		Err:        errMsg,
		Duration:   pc.CompletedAt.Sub(pc.StartedAt),
		Context:    pc,
	}
}

func (o *Orchestrator) persistRecord(pc *PipelineContext, status Status, errMsg string) {
	if o.opts.Artifacts == nil {
		return
	}
	finalStage := pc.CurrentStage
	if status == StatusFailed && len(pc.History) >= 2 {
		// The last entry is StageFailed; the one before is where it broke.
		finalStage = pc.History[len(pc.History)-2].Stage
	}
	_ = o.opts.Artifacts.SaveRecord(&store.RunRecord{
		PipelineID:        pc.ID,
		Request:           pc.Request,
		Status:            string(status),
		FinalStage:        string(finalStage),
		Error:             errMsg,
		RevisionIteration: pc.RevisionIteration,
		TestFailures:      pc.TestFailures,
		AppliedFiles:      pc.AppliedFiles,
		WorkspaceRoot:     pc.WorkspaceRoot,
		StartedAt:         pc.StartedAt.Format(time.RFC3339),
		CompletedAt:       pc.CompletedAt.Format(time.RFC3339),
	})
}

func (o *Orchestrator) artifact(pc *PipelineContext, name, data string) {
	if o.opts.Artifacts == nil {
		return
	}
	_ = o.opts.Artifacts.SaveArtifact(pc.ID, name, []byte(data))
}

func (o *Orchestrator) event(pc *PipelineContext, event, detail string) {
	if o.opts.Events == nil {
		return
	}
	_ = o.opts.Events.LogPipelineEvent(pc.ID, event, string(pc.CurrentStage), detail)
}

func (o *Orchestrator) stageRun(pc *PipelineContext, stage Stage, outcome string, elapsed time.Duration, detail string) {
	if o.opts.Events == nil {
		return
	}
	_ = o.opts.Events.LogStageRun(pc.ID, string(stage), outcome, int(elapsed.Milliseconds()), detail)
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.opts.Progress == nil {
		return
	}
	fmt.Fprintf(o.opts.Progress, format+"\n", args...)
}

func cancelMessage(ctx context.Context, pc *PipelineContext) string {
	if err := ctx.Err(); err != nil {
		return fmt.Sprintf("pipeline cancelled at stage %s after %s: %v",
			pc.CurrentStage, time.Since(pc.StartedAt).Round(time.Millisecond), err)
	}
	return ""
}
