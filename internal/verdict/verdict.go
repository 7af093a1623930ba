// Package verdict parses reviewer and evaluator agent output.
package verdict

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Review verdicts.
const (
	Approve = "APPROVE"
	Reject  = "REJECT"
	Revise  = "REVISE"
	Unknown = "UNKNOWN"
)

// Evaluator verdicts.
const (
	Accept = "ACCEPT"
)

// Issue is one reviewer finding.
type Issue struct {
	Severity   string `json:"severity"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

// Review is the parsed reviewer output.
type Review struct {
	Verdict string             `json:"verdict"`
	Issues  []Issue            `json:"issues"`
	Summary string             `json:"summary"`
	Metrics map[string]float64 `json:"metrics"`
}

// Evaluation is the parsed evaluator output.
type Evaluation struct {
	OverallScore    float64            `json:"overall_score"`
	FinalVerdict    string             `json:"final_verdict"`
	Scores          map[string]float64 `json:"scores"`
	Strengths       []string           `json:"strengths"`
	Weaknesses      []string           `json:"weaknesses"`
	Recommendations []string           `json:"recommendations"`
	Justification   string             `json:"justification"`
}

type evaluationEnvelope struct {
	Evaluation *Evaluation `json:"evaluation"`
}

var verdictWordRe = regexp.MustCompile(`\b(REJECT|REVISE|APPROVE)\b`)

// ParseReview extracts the reviewer's verdict and findings. JSON output is
// preferred; for plain-text output the first standalone verdict keyword wins.
// Output with no recognizable verdict is Unknown.
func ParseReview(output string) Review {
	if raw, ok := extractObject(output); ok {
		var r Review
		if err := json.Unmarshal(raw, &r); err == nil && normalizeVerdict(r.Verdict) != Unknown {
			r.Verdict = normalizeVerdict(r.Verdict)
			return r
		}
	}
	if m := verdictWordRe.FindString(strings.ToUpper(output)); m != "" {
		return Review{Verdict: m, Summary: strings.TrimSpace(output)}
	}
	return Review{Verdict: Unknown, Summary: strings.TrimSpace(output)}
}

// ParseEvaluation extracts the evaluator's score and verdict.
func ParseEvaluation(output string) (*Evaluation, error) {
	raw, ok := extractObject(output)
	if !ok {
		return nil, fmt.Errorf("evaluator output contains no JSON object")
	}
	var env evaluationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("evaluator output is not valid JSON: %w", err)
	}
	if env.Evaluation == nil {
		return nil, fmt.Errorf("evaluator output missing evaluation object")
	}
	env.Evaluation.FinalVerdict = strings.ToUpper(strings.TrimSpace(env.Evaluation.FinalVerdict))
	return env.Evaluation, nil
}

func normalizeVerdict(v string) string {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case Approve:
		return Approve
	case Reject:
		return Reject
	case Revise:
		return Revise
	}
	return Unknown
}

func extractObject(text string) ([]byte, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, false
	}
	return []byte(text[start : end+1]), true
}
