package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/patchwork-labs/pilot/internal/agent"
	"github.com/patchwork-labs/pilot/internal/workspace"
)

// stubAgent replays a fixed sequence of outputs; the last output repeats.
type stubAgent struct {
	outputs []string
	err     error
	failMsg string
	calls   int
	inputs  []agent.Input
}

func (s *stubAgent) Execute(_ context.Context, in agent.Input) (*agent.Result, error) {
	s.inputs = append(s.inputs, in)
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.failMsg != "" {
		return &agent.Result{Success: false, ErrorMessage: s.failMsg}, nil
	}
	i := s.calls - 1
	if i >= len(s.outputs) {
		i = len(s.outputs) - 1
	}
	return &agent.Result{Success: true, Output: s.outputs[i]}, nil
}

const goodPlan = `{
  "plan": {"steps": [
    {"step_number": 1, "description": "add calculator", "file_target": "App/Calculator.cs", "agent": "coder", "estimated_loc": 40}
  ]},
  "file_list": [{"path": "App/Calculator.cs", "operation": "create", "reason": "new feature"}],
  "risk": {"level": "low", "factors": []},
  "verify": "run the suite",
  "rollback": "revert the patch"
}`

const highRiskPlan = `{
  "plan": {"steps": [{"step_number": 1, "description": "rewrite auth", "file_target": "App/Auth.cs", "agent": "coder", "estimated_loc": 120}]},
  "file_list": [{"path": "App/Auth.cs", "operation": "modify", "reason": "security"}],
  "risk": {"level": "high", "factors": ["touches authentication"]},
  "verify": "manual",
  "rollback": "revert"
}`

const coderOps = `{"file_operations": {"operations": [
  {"type": "create", "path": "App/Calculator.cs",
   "content": "public class Calculator\n{\n    public int Add(int a, int b) => a + b;\n}"}
]}}`

const (
	reviewApprove = `{"verdict": "APPROVE", "issues": [], "summary": "clean change"}`
	reviewRevise  = `{"verdict": "REVISE", "issues": [{"severity": "minor", "message": "rename variable"}], "summary": "needs polish"}`
	reviewReject  = `{"verdict": "REJECT", "issues": [], "summary": "wrong approach"}`

	testsPass = `{"pass": true, "failed": 0, "passed": 5, "total": 5}`
	testsFail = `{"pass": false, "failed": 2, "passed": 3, "total": 5}`

	evalAccept = `{"evaluation": {"overall_score": 8.4, "final_verdict": "ACCEPT", "justification": "solid"}}`
)

func happyAgents() (Agents, *stubAgent, *stubAgent) {
	coder := &stubAgent{outputs: []string{coderOps}}
	reviewer := &stubAgent{outputs: []string{reviewApprove}}
	return Agents{
		Planner:   &stubAgent{outputs: []string{goodPlan}},
		Coder:     coder,
		Reviewer:  reviewer,
		Tester:    &stubAgent{outputs: []string{testsPass}},
		Evaluator: &stubAgent{outputs: []string{evalAccept}},
	}, coder, reviewer
}

func newTestOrchestrator(t *testing.T, agents Agents) *Orchestrator {
	t.Helper()
	return New(agents, Options{
		BaseDir:       t.TempDir(),
		WorkspaceKind: workspace.Test,
	})
}

func TestRun_Success(t *testing.T) {
	agents, _, _ := happyAgents()
	o := newTestOrchestrator(t, agents)

	res := o.Run(context.Background(), "add a calculator")

	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (err %q), want success", res.Status, res.Err)
	}
	if res.FinalStage != StageCompleted {
		t.Errorf("final stage = %s, want completed", res.FinalStage)
	}
	pc := res.Context
	if len(pc.AppliedFiles) != 1 || pc.AppliedFiles[0] != "App/Calculator.cs" {
		t.Errorf("applied files = %v", pc.AppliedFiles)
	}
	data, err := os.ReadFile(filepath.Join(pc.WorkspaceRoot, "App", "Calculator.cs"))
	if err != nil {
		t.Fatalf("read applied file: %v", err)
	}
	if !strings.Contains(string(data), "public int Add") {
		t.Errorf("applied content = %q", data)
	}
	if pc.CompletedAt.IsZero() {
		t.Error("CompletedAt not set")
	}
}

func TestRun_HistoryTracksEveryTransition(t *testing.T) {
	agents, _, _ := happyAgents()
	o := newTestOrchestrator(t, agents)

	pc := o.Run(context.Background(), "add a calculator").Context

	want := []Stage{StagePlanning, StageCoding, StageReviewing, StageTesting, StageEvaluating, StageCompleted}
	if len(pc.History) != len(want) {
		t.Fatalf("history length = %d, want %d", len(pc.History), len(want))
	}
	prev := StageNotStarted
	for i, entry := range pc.History {
		if entry.Stage != want[i] {
			t.Errorf("history[%d].Stage = %s, want %s", i, entry.Stage, want[i])
		}
		if entry.Previous != prev {
			t.Errorf("history[%d].Previous = %s, want %s", i, entry.Previous, prev)
		}
		prev = entry.Stage
	}
	if pc.CurrentStage != pc.History[len(pc.History)-1].Stage {
		t.Errorf("CurrentStage %s does not match last history entry", pc.CurrentStage)
	}
}

func TestRun_TestFailuresAreWarnings(t *testing.T) {
	agents, _, _ := happyAgents()
	agents.Tester = &stubAgent{outputs: []string{testsFail}}
	o := newTestOrchestrator(t, agents)

	res := o.Run(context.Background(), "add a calculator")

	if res.Status != StatusPassedWithWarnings {
		t.Fatalf("status = %s (err %q), want passed_with_warnings", res.Status, res.Err)
	}
	if res.Context.TestFailures != 2 {
		t.Errorf("test failures = %d, want 2", res.Context.TestFailures)
	}
}

func TestRun_ReviewerRejectTerminates(t *testing.T) {
	agents, _, _ := happyAgents()
	agents.Reviewer = &stubAgent{outputs: []string{reviewReject}}
	tester := &stubAgent{outputs: []string{testsPass}}
	agents.Tester = tester
	o := newTestOrchestrator(t, agents)

	res := o.Run(context.Background(), "add a calculator")

	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Err, "REJECT") {
		t.Errorf("err = %q, want REJECT mentioned", res.Err)
	}
	if tester.calls != 0 {
		t.Error("tester ran after a rejected review")
	}
	pc := res.Context
	if pc.TestReport != "" || pc.Scores != "" {
		t.Error("later-stage outputs set on a rejected run")
	}
	if _, err := os.Stat(pc.WorkspaceRoot); !os.IsNotExist(err) {
		t.Error("workspace not removed after failure")
	}
}

func TestRun_RevisionLoopTerminatesAtCap(t *testing.T) {
	agents, coder, reviewer := happyAgents()
	reviewer.outputs = []string{reviewRevise}
	o := newTestOrchestrator(t, agents)

	res := o.Run(context.Background(), "add a calculator")

	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Err, "Maximum revision iterations") {
		t.Errorf("err = %q, want revision-cap message", res.Err)
	}
	if res.Context.RevisionIteration != defaultMaxRevisions {
		t.Errorf("revision iteration = %d, want %d", res.Context.RevisionIteration, defaultMaxRevisions)
	}
	// Initial attempt plus one per revision.
	if coder.calls != defaultMaxRevisions+1 {
		t.Errorf("coder calls = %d, want %d", coder.calls, defaultMaxRevisions+1)
	}
	if reviewer.calls != defaultMaxRevisions+1 {
		t.Errorf("reviewer calls = %d, want %d", reviewer.calls, defaultMaxRevisions+1)
	}
}

func TestRun_RevisionFeedsReviewBackToCoder(t *testing.T) {
	agents, coder, reviewer := happyAgents()
	reviewer.outputs = []string{reviewRevise, reviewApprove}
	o := newTestOrchestrator(t, agents)

	res := o.Run(context.Background(), "add a calculator")

	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (err %q), want success", res.Status, res.Err)
	}
	if res.Context.RevisionIteration != 1 {
		t.Errorf("revision iteration = %d, want 1", res.Context.RevisionIteration)
	}
	if coder.calls != 2 {
		t.Fatalf("coder calls = %d, want 2", coder.calls)
	}
	if !strings.Contains(coder.inputs[1].Prompt, "rename variable") {
		t.Error("revision prompt missing review feedback")
	}
	if coder.inputs[1].Context.RevisionIteration != 1 {
		t.Errorf("revision iteration in agent context = %d, want 1",
			coder.inputs[1].Context.RevisionIteration)
	}
}

func TestRun_UnknownReviewVerdictFailsClosed(t *testing.T) {
	agents, _, _ := happyAgents()
	agents.Reviewer = &stubAgent{outputs: []string{"looks plausible to me"}}
	o := newTestOrchestrator(t, agents)

	res := o.Run(context.Background(), "add a calculator")

	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Err, "unrecognized") {
		t.Errorf("err = %q", res.Err)
	}
}

func TestRun_EvaluatorScoreBoundary(t *testing.T) {
	cases := []struct {
		name   string
		scores string
		want   Status
	}{
		{"below threshold fails even when accepted",
			`{"evaluation": {"overall_score": 6.9, "final_verdict": "ACCEPT"}}`, StatusFailed},
		{"at threshold passes",
			`{"evaluation": {"overall_score": 7.0, "final_verdict": "ACCEPT"}}`, StatusSuccess},
		{"reject fails even with high score",
			`{"evaluation": {"overall_score": 9.5, "final_verdict": "REJECT"}}`, StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agents, _, _ := happyAgents()
			agents.Evaluator = &stubAgent{outputs: []string{tc.scores}}
			o := newTestOrchestrator(t, agents)

			res := o.Run(context.Background(), "add a calculator")
			if res.Status != tc.want {
				t.Fatalf("status = %s (err %q), want %s", res.Status, res.Err, tc.want)
			}
			if tc.want == StatusFailed && !strings.Contains(res.Err, "evaluation") {
				t.Errorf("err = %q, want evaluation gate message", res.Err)
			}
		})
	}
}

func TestRun_ApprovalGateStopsBeforeCoding(t *testing.T) {
	agents, coder, _ := happyAgents()
	agents.Planner = &stubAgent{outputs: []string{highRiskPlan}}
	o := newTestOrchestrator(t, agents)

	res := o.Run(context.Background(), "rewrite auth")

	if res.Status != StatusAwaitingApproval {
		t.Fatalf("status = %s, want awaiting_approval", res.Status)
	}
	if res.FinalStage != StageAwaitingApproval {
		t.Errorf("final stage = %s", res.FinalStage)
	}
	pc := res.Context
	if !pc.ApprovalRequired {
		t.Error("ApprovalRequired not set")
	}
	if !strings.Contains(pc.ApprovalReason, "high risk") {
		t.Errorf("approval reason = %q", pc.ApprovalReason)
	}
	if coder.calls != 0 {
		t.Error("coder ran despite pending approval")
	}
	if _, err := os.Stat(pc.WorkspaceRoot); err != nil {
		t.Error("workspace not preserved for the approval decision")
	}
}

func TestRun_PlanValidationFailure(t *testing.T) {
	agents, _, _ := happyAgents()
	agents.Planner = &stubAgent{outputs: []string{`{"plan": {"steps": []}, "risk": {"level": "low"}}`}}
	o := newTestOrchestrator(t, agents)

	res := o.Run(context.Background(), "do something")

	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Err, "plan validation") {
		t.Errorf("err = %q", res.Err)
	}
}

func TestRun_AgentTransportError(t *testing.T) {
	agents, _, _ := happyAgents()
	agents.Planner = &stubAgent{err: errors.New("command not found")}
	o := newTestOrchestrator(t, agents)

	res := o.Run(context.Background(), "do something")

	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Err, "planning") || !strings.Contains(res.Err, "command not found") {
		t.Errorf("err = %q", res.Err)
	}
}

func TestRun_AgentReportedFailure(t *testing.T) {
	agents, _, _ := happyAgents()
	agents.Coder = &stubAgent{failMsg: "rate limited"}
	o := newTestOrchestrator(t, agents)

	res := o.Run(context.Background(), "add a calculator")

	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Err, "rate limited") {
		t.Errorf("err = %q", res.Err)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	agents, _, _ := happyAgents()
	planner := agents.Planner.(*stubAgent)
	o := newTestOrchestrator(t, agents)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := o.Run(ctx, "add a calculator")

	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Err, "cancelled") {
		t.Errorf("err = %q", res.Err)
	}
	if planner.calls != 0 {
		t.Error("planner invoked on a cancelled context")
	}
}

func TestRun_CoderUnifiedDiffFallback(t *testing.T) {
	diff := "diff --git a/App/Greeting.cs b/App/Greeting.cs\n" +
		"--- /dev/null\n" +
		"+++ b/App/Greeting.cs\n" +
		"@@ -0,0 +1,2 @@\n" +
		"+public class Greeting\n" +
		"+    // stub\n"
	agents, coder, _ := happyAgents()
	coder.outputs = []string{diff}
	o := newTestOrchestrator(t, agents)

	res := o.Run(context.Background(), "add a greeting")

	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (err %q), want success", res.Status, res.Err)
	}
	if len(res.Context.AppliedFiles) != 1 || res.Context.AppliedFiles[0] != "App/Greeting.cs" {
		t.Errorf("applied files = %v", res.Context.AppliedFiles)
	}
}

func TestRun_GarbageCoderOutputFails(t *testing.T) {
	agents, coder, _ := happyAgents()
	coder.outputs = []string{"I could not produce a change."}
	o := newTestOrchestrator(t, agents)

	res := o.Run(context.Background(), "add a calculator")

	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Err, "neither file operations nor a unified diff") {
		t.Errorf("err = %q", res.Err)
	}
}

func TestRun_PreserveOnFailureKeepsWorkspace(t *testing.T) {
	agents, _, _ := happyAgents()
	agents.Reviewer = &stubAgent{outputs: []string{reviewReject}}
	o := New(agents, Options{
		BaseDir:           t.TempDir(),
		WorkspaceKind:     workspace.Test,
		PreserveOnFailure: true,
	})

	res := o.Run(context.Background(), "add a calculator")

	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if _, err := os.Stat(res.Context.WorkspaceRoot); err != nil {
		t.Error("workspace removed despite PreserveOnFailure")
	}
}

func TestCaps_Defaults(t *testing.T) {
	c := Caps{}.withDefaults()
	if c.MaxRevisions != defaultMaxRevisions || c.MaxAutoFixRounds != defaultMaxAutoFixRounds || c.ScoreThreshold != defaultScoreThreshold {
		t.Errorf("defaults = %+v", c)
	}
	c = Caps{MaxRevisions: 5, MaxAutoFixRounds: 1, ScoreThreshold: 9}.withDefaults()
	if c.MaxRevisions != 5 || c.MaxAutoFixRounds != 1 || c.ScoreThreshold != 9 {
		t.Errorf("overrides lost: %+v", c)
	}
}
