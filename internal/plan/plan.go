// Package plan parses and validates the planner agent's structured output.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyOutput is returned when the planner produced no output at all,
// distinct from malformed output.
var ErrEmptyOutput = errors.New("planner returned empty output")

// requiredKeys must all be present at the top level of the planner document.
var requiredKeys = []string{"plan", "file_list", "risk", "verify", "rollback"}

// Document is the planner's structured output.
type Document struct {
	Plan           Plan            `json:"plan"`
	FileList       []FileEntry     `json:"file_list"`
	Risk           Risk            `json:"risk"`
	Verify         json.RawMessage `json:"verify"`
	Rollback       json.RawMessage `json:"rollback"`
	NeedsApproval  bool            `json:"needs_approval"`
	ApprovalReason string          `json:"approval_reason"`
}

// Plan holds the ordered implementation steps.
type Plan struct {
	Steps []Step `json:"steps"`
}

// Step is one planned unit of work.
type Step struct {
	StepNumber   int    `json:"step_number"`
	Description  string `json:"description"`
	FileTarget   string `json:"file_target"`
	Agent        string `json:"agent"`
	EstimatedLOC int    `json:"estimated_loc"`
}

// FileEntry is one planned file change.
type FileEntry struct {
	Path      string `json:"path"`
	Operation string `json:"operation"`
	Reason    string `json:"reason"`
}

// Risk is the planner's risk self-assessment.
type Risk struct {
	Level   string   `json:"level"`
	Factors []string `json:"factors"`
}

// Parse validates planner output: non-empty, valid JSON, all required keys
// present. Surrounding prose around the JSON object is tolerated.
func Parse(output string) (*Document, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, ErrEmptyOutput
	}

	raw, err := extractObject(trimmed)
	if err != nil {
		return nil, err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("planner output is not valid JSON: %w", err)
	}
	var missing []string
	for _, k := range requiredKeys {
		if _, ok := keys[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("planner output missing required keys: %s", strings.Join(missing, ", "))
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("planner output has malformed fields: %w", err)
	}
	return &doc, nil
}

// extractObject pulls the outermost JSON object out of possibly-noisy text.
func extractObject(text string) ([]byte, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("planner output is not valid JSON: no object found")
	}
	return []byte(text[start : end+1]), nil
}
