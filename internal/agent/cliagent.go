package agent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single agent invocation; the subprocess is killed
// when it expires, converting a hang into a deterministic failure.
const DefaultTimeout = 5 * time.Minute

// CLIAgent runs an external agent command, feeding the prompt on stdin and
// reading the stage output from stdout. Stage context travels in PILOT_*
// environment variables.
type CLIAgent struct {
	Command string
	Args    []string
	Model   string
	Timeout time.Duration
}

// Execute runs the agent command once.
func (a *CLIAgent) Execute(ctx context.Context, in Input) (*Result, error) {
	if a.Command == "" {
		return nil, fmt.Errorf("agent command is empty")
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.Command, a.Args...)
	cmd.Dir = in.Context.WorkspaceRoot
	cmd.Stdin = strings.NewReader(in.Prompt)
	cmd.Env = append(os.Environ(),
		"PILOT_WORKSPACE="+in.Context.WorkspaceRoot,
		"PILOT_PIPELINE_ID="+in.Context.PipelineID,
		"PILOT_STAGE="+in.Context.Stage,
		"PILOT_REVISION="+strconv.Itoa(in.Context.RevisionIteration),
	)
	if a.Model != "" {
		cmd.Env = append(cmd.Env, "PILOT_MODEL="+a.Model)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return &Result{
			Success:      false,
			Output:       stdout.String(),
			ErrorMessage: fmt.Sprintf("agent %s timed out after %s", a.Command, timeout),
		}, nil
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return &Result{Success: false, Output: stdout.String(), ErrorMessage: msg}, nil
	}
	return &Result{Success: true, Output: stdout.String()}, nil
}
