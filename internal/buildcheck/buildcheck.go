// Package buildcheck validates that a workspace compiles and auto-fixes
// missing-import compiler errors up to a bounded number of rounds.
package buildcheck

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds one build invocation; the process is force-killed on
// expiry.
const DefaultTimeout = 2 * time.Minute

var (
	initOnce sync.Once
	initErr  error
)

// EnsureInitialized verifies once per process that the build tool is
// available. Idempotent; safe from multiple goroutines.
func EnsureInitialized() error {
	initOnce.Do(func() {
		if _, err := exec.LookPath("dotnet"); err != nil {
			initErr = fmt.Errorf("dotnet not found on PATH: %w", err)
		}
	})
	return initErr
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec %s: %w", name, err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Diagnostic is one parsed compiler error.
type Diagnostic struct {
	File        string `json:"file"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	MissingType string `json:"missing_type,omitempty"`
}

// BuildResult is the outcome of one build invocation.
type BuildResult struct {
	Passed bool         `json:"passed"`
	Output string       `json:"output"`
	Errors []Diagnostic `json:"errors,omitempty"`
}

// dotnet build output: Src/Calculator.cs(12,9): error CS0246: The type or
// namespace name 'List<int>' could not be found ...
var buildErrRe = regexp.MustCompile(`(?m)^\s*(.+?)\((\d+),(\d+)\):\s+error\s+(CS\d+):\s+(.+?)\s*(?:\[[^\]]*\])?\s*$`)

var missingTypeRe = regexp.MustCompile(`type or namespace name '([^'<]+)`)

// Validator runs the build tool against a workspace directory.
type Validator struct {
	cmd     CommandRunner
	timeout time.Duration
}

// NewValidator creates a Validator over the given runner.
func NewValidator(cmd CommandRunner) *Validator {
	return &Validator{cmd: cmd, timeout: DefaultTimeout}
}

// SetTimeout overrides the build timeout (for testing).
func (v *Validator) SetTimeout(d time.Duration) {
	v.timeout = d
}

// Validate builds the project and parses error diagnostics from the output.
func (v *Validator) Validate(ctx context.Context, dir string) (*BuildResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	stdout, stderr, exitCode, err := v.cmd.Run(runCtx, dir, "dotnet", "build", "--nologo")
	if runCtx.Err() == context.DeadlineExceeded {
		return &BuildResult{
			Passed: false,
			Output: fmt.Sprintf("build timed out after %s", v.timeout),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run build: %w", err)
	}

	output := stdout
	if stderr != "" {
		output += "\n" + stderr
	}
	res := &BuildResult{Passed: exitCode == 0, Output: output}
	if res.Passed {
		return res, nil
	}

	seen := make(map[string]bool)
	for _, m := range buildErrRe.FindAllStringSubmatch(output, -1) {
		line, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		d := Diagnostic{File: m[1], Line: line, Column: col, Code: m[4], Message: m[5]}
		if d.Code == "CS0246" {
			if tm := missingTypeRe.FindStringSubmatch(d.Message); tm != nil {
				d.MissingType = tm[1]
			}
		}
		key := fmt.Sprintf("%s:%d:%s:%s", d.File, d.Line, d.Code, d.MissingType)
		if seen[key] {
			continue
		}
		seen[key] = true
		res.Errors = append(res.Errors, d)
	}
	return res, nil
}
