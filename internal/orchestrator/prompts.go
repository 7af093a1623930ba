package orchestrator

import (
	"fmt"
	"strings"

	"github.com/patchwork-labs/pilot/internal/workspace"
)

// Stage prompts. Each agent receives the request plus the accumulated
// context it needs; output contracts (JSON envelopes, diff format) are
// stated inline so any conforming agent command can serve a stage.

func planningPrompt(request string, s *workspace.Structure) string {
	var b strings.Builder
	b.WriteString("You are the planning agent for a code change pipeline.\n\n")
	b.WriteString("Change request:\n")
	b.WriteString(request)
	b.WriteString("\n\n")
	writeStructure(&b, s)
	b.WriteString("Produce a JSON object with exactly these keys:\n")
	b.WriteString(`  "plan": {"steps": [{"step_number", "description", "file_target", "agent", "estimated_loc"}]}` + "\n")
	b.WriteString(`  "file_list": [paths to be touched]` + "\n")
	b.WriteString(`  "risk": {"level": "low|medium|high", "factors": [...]}` + "\n")
	b.WriteString(`  "verify": how the change will be verified` + "\n")
	b.WriteString(`  "rollback": how the change can be undone` + "\n")
	return b.String()
}

func codingPrompt(planJSON string, s *workspace.Structure, review string) string {
	var b strings.Builder
	b.WriteString("You are the coding agent. Implement the approved plan.\n\n")
	b.WriteString("Plan:\n")
	b.WriteString(planJSON)
	b.WriteString("\n\n")
	writeStructure(&b, s)
	if review != "" {
		b.WriteString("A reviewer requested changes to your previous attempt. ")
		b.WriteString("Address every issue below and emit the complete corrected change set.\n\n")
		b.WriteString("Review feedback:\n")
		b.WriteString(review)
		b.WriteString("\n\n")
	}
	b.WriteString("Emit either a unified diff (diff --git headers, @@ hunks) or a JSON object ")
	b.WriteString(`{"file_operations": {"operations": [...]}} with create/modify/delete/rename operations.` + "\n")
	b.WriteString("Test files go in test projects; production code goes in the main project.\n")
	return b.String()
}

func reviewPrompt(planJSON, patchText string) string {
	var b strings.Builder
	b.WriteString("You are the code review agent. Review the change against its plan.\n\n")
	b.WriteString("Plan:\n")
	b.WriteString(planJSON)
	b.WriteString("\n\nChange set:\n")
	b.WriteString(patchText)
	b.WriteString("\n\n")
	b.WriteString(`Respond with JSON {"verdict": "APPROVE|REVISE|REJECT", "issues": [...], "summary": "..."}.` + "\n")
	b.WriteString("REVISE means the coder should retry with your issues; REJECT terminates the pipeline.\n")
	return b.String()
}

func testingPrompt(s *workspace.Structure, appliedFiles []string) string {
	var b strings.Builder
	b.WriteString("You are the testing agent. Run the test suite in the workspace and report results.\n\n")
	writeStructure(&b, s)
	if len(appliedFiles) > 0 {
		b.WriteString("Files changed by this pipeline:\n")
		for _, f := range appliedFiles {
			fmt.Fprintf(&b, "  %s\n", f)
		}
		b.WriteString("\n")
	}
	b.WriteString(`Respond with JSON {"pass": bool, "failed": n, "passed": n, "total": n} plus any failure detail.` + "\n")
	return b.String()
}

func evaluationPrompt(pc *PipelineContext) string {
	var b strings.Builder
	b.WriteString("You are the evaluation agent. Judge the completed change holistically.\n\n")
	b.WriteString("Original request:\n")
	b.WriteString(pc.Request)
	b.WriteString("\n\nPlan:\n")
	b.WriteString(pc.Plan)
	b.WriteString("\n\nReview:\n")
	b.WriteString(pc.Review)
	b.WriteString("\n\nTest report:\n")
	b.WriteString(pc.TestReport)
	b.WriteString("\n\n")
	b.WriteString(`Respond with JSON {"evaluation": {"overall_score": 0-10, "final_verdict": "ACCEPT|REJECT", `)
	b.WriteString(`"scores": {...}, "strengths": [...], "weaknesses": [...], "recommendations": [...], "justification": "..."}}.` + "\n")
	return b.String()
}

func writeStructure(b *strings.Builder, s *workspace.Structure) {
	if s == nil {
		return
	}
	if s.MainProjectDir != "" {
		fmt.Fprintf(b, "Main project directory: %s\n", s.MainProjectDir)
	}
	if len(s.TestProjectDirs) > 0 {
		fmt.Fprintf(b, "Test project directories: %s\n", strings.Join(s.TestProjectDirs, ", "))
	}
	if s.MainProjectDir != "" || len(s.TestProjectDirs) > 0 {
		b.WriteString("\n")
	}
}
