package verdict

import (
	"strings"
	"testing"
)

func TestParseReview_JSON(t *testing.T) {
	out := `{"verdict": "revise", "issues": [
  {"severity": "major", "file": "Calculator.cs", "line": 12, "message": "missing null check", "suggestion": "guard input"}
], "summary": "needs one fix"}`
	r := ParseReview(out)
	if r.Verdict != Revise {
		t.Errorf("verdict: %q", r.Verdict)
	}
	if len(r.Issues) != 1 || r.Issues[0].Line != 12 {
		t.Errorf("issues: %+v", r.Issues)
	}
	if r.Summary != "needs one fix" {
		t.Errorf("summary: %q", r.Summary)
	}
}

func TestParseReview_KeywordFallback(t *testing.T) {
	cases := map[string]string{
		"Looks great. APPROVE.":                  Approve,
		"I must REJECT this change.":             Reject,
		"Please REVISE the error handling.":      Revise,
		"The word rejection alone is ambiguous.": Unknown,
		"":                                       Unknown,
	}
	for input, want := range cases {
		if got := ParseReview(input).Verdict; got != want {
			t.Errorf("input %q: got %q, want %q", input, got, want)
		}
	}
}

func TestParseReview_RejectBeatsLaterKeywords(t *testing.T) {
	// First standalone keyword wins for plain text.
	r := ParseReview("REJECT — do not APPROVE this.")
	if r.Verdict != Reject {
		t.Errorf("got %q", r.Verdict)
	}
}

func TestParseEvaluation(t *testing.T) {
	out := `Some preamble.
{"evaluation": {"overall_score": 8.5, "final_verdict": "accept",
 "scores": {"correctness": 9, "style": 8},
 "strengths": ["clear"], "weaknesses": [], "recommendations": [], "justification": "solid"}}`
	e, err := ParseEvaluation(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.OverallScore != 8.5 {
		t.Errorf("score: %v", e.OverallScore)
	}
	if e.FinalVerdict != Accept {
		t.Errorf("verdict: %q", e.FinalVerdict)
	}
	if e.Scores["correctness"] != 9 {
		t.Errorf("scores: %+v", e.Scores)
	}
}

func TestParseEvaluation_Errors(t *testing.T) {
	if _, err := ParseEvaluation("no json here"); err == nil {
		t.Error("expected error for non-JSON output")
	}
	if _, err := ParseEvaluation(`{"overall_score": 9}`); err == nil || !strings.Contains(err.Error(), "missing evaluation") {
		t.Errorf("expected missing-envelope error, got %v", err)
	}
}

func TestParseTestReport(t *testing.T) {
	s := ParseTestReport(`{"pass": true, "failed": 0, "passed": 12, "total": 12}`)
	if !s.Pass || s.Failed != 0 {
		t.Errorf("unexpected summary: %+v", s)
	}

	s = ParseTestReport(`{"pass": false, "failed": 3}`)
	if s.Pass || s.Failed != 3 {
		t.Errorf("unexpected summary: %+v", s)
	}

	// Failing report without a count still records at least one failure.
	s = ParseTestReport(`{"pass": false}`)
	if s.Failed != 1 {
		t.Errorf("expected 1 implied failure, got %d", s.Failed)
	}

	s = ParseTestReport("Ran 10 tests, 2 failed")
	if s.Pass || s.Failed != 2 {
		t.Errorf("plain-text fallback: %+v", s)
	}

	s = ParseTestReport("all good")
	if !s.Pass || s.Failed != 0 {
		t.Errorf("unparseable report should default to pass: %+v", s)
	}
}
