// Package approval decides whether a plan needs human sign-off before the
// pipeline mutates anything.
package approval

import (
	"fmt"
	"strings"

	"github.com/patchwork-labs/pilot/internal/plan"
)

// Thresholds above which a plan needs human approval.
const (
	maxStepLOC = 300
	maxSteps   = 7
)

// Decision is a stateless classification of one planner document.
type Decision struct {
	Required bool     `json:"required"`
	Triggers []string `json:"triggers,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// Evaluate classifies planner output. It fails closed: output that cannot be
// parsed marks approval as required rather than silently passing. All checks
// run and every matching trigger is collected, not just the first.
func Evaluate(plannerOutput string) Decision {
	doc, err := plan.Parse(plannerOutput)
	if err != nil {
		return decisionFrom([]string{fmt.Sprintf("planner output could not be evaluated: %v", err)})
	}
	return EvaluateDocument(doc)
}

// EvaluateDocument runs the trigger checks against an already-parsed plan.
func EvaluateDocument(doc *plan.Document) Decision {
	var triggers []string

	if doc.NeedsApproval {
		reason := doc.ApprovalReason
		if reason == "" {
			reason = "planner flagged the plan for approval"
		}
		triggers = append(triggers, reason)
	}

	if strings.EqualFold(doc.Risk.Level, "high") {
		triggers = append(triggers, fmt.Sprintf("high risk: %s", strings.Join(doc.Risk.Factors, ", ")))
	}

	for _, step := range doc.Plan.Steps {
		if step.EstimatedLOC > maxStepLOC {
			triggers = append(triggers, fmt.Sprintf("step %d (%s) estimates %d LOC (limit %d)",
				step.StepNumber, step.Description, step.EstimatedLOC, maxStepLOC))
		}
	}

	if n := len(doc.Plan.Steps); n > maxSteps {
		triggers = append(triggers, fmt.Sprintf("plan has %d steps (limit %d)", n, maxSteps))
	}

	var deletions []string
	for _, f := range doc.FileList {
		if f.Operation == "delete" {
			deletions = append(deletions, f.Path)
		}
	}
	if len(deletions) > 0 {
		triggers = append(triggers, fmt.Sprintf("plan deletes files: %s", strings.Join(deletions, ", ")))
	}

	return decisionFrom(triggers)
}

func decisionFrom(triggers []string) Decision {
	return Decision{
		Required: len(triggers) > 0,
		Triggers: triggers,
		Reason:   strings.Join(triggers, "; "),
	}
}
