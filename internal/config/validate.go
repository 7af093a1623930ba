package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var recognizedKinds = map[string]bool{
	"production": true,
	"test":       true,
}

// Validate checks a PilotConfig for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *PilotConfig) []ValidationError {
	var errs []ValidationError
	p := cfg.Pilot

	if p.Name == "" {
		errs = append(errs, ValidationError{Field: "pilot.name", Message: "is required"})
	}
	if p.WorkspaceDir == "" {
		errs = append(errs, ValidationError{Field: "pilot.workspace_dir", Message: "is required"})
	}
	if !recognizedKinds[p.WorkspaceKind] {
		errs = append(errs, ValidationError{
			Field:   "pilot.workspace_kind",
			Message: fmt.Sprintf("unrecognized kind %q (want production or test)", p.WorkspaceKind),
		})
	}

	for _, name := range StageNames {
		a, ok := p.Agents[name]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pilot.agents.%s", name),
				Message: "is required",
			})
			continue
		}
		if a.Command == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pilot.agents.%s.command", name),
				Message: "is required (no default command set)",
			})
		}
		if a.Timeout != "" {
			if _, err := time.ParseDuration(a.Timeout); err != nil {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("pilot.agents.%s.timeout", name),
					Message: fmt.Sprintf("invalid duration %q", a.Timeout),
				})
			}
		}
	}

	for name := range p.Agents {
		if !isStageName(name) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pilot.agents.%s", name),
				Message: "is not a pipeline stage",
			})
		}
	}

	return errs
}

func isStageName(name string) bool {
	for _, s := range StageNames {
		if s == name {
			return true
		}
	}
	return false
}
