// Package agent defines the narrow capability the orchestrator consumes for
// every pipeline stage, plus an exec-backed implementation for real agent
// CLIs. The orchestrator never inspects concrete implementations.
package agent

import (
	"context"
)

// Context carries the fields stages actually need. Typed on purpose: no
// string-keyed side-channel bag.
type Context struct {
	WorkspaceRoot     string
	PipelineID        string
	Stage             string
	RevisionIteration int
}

// Input is one stage invocation.
type Input struct {
	Prompt  string
	Context Context
}

// Result is the agent's reported outcome. Success false with an ErrorMessage
// is an agent-level failure, distinct from a transport error.
type Result struct {
	Success      bool
	Output       string
	ErrorMessage string
}

// Agent executes one pipeline stage. Implementations may be LLM CLIs,
// scripts, or test doubles.
type Agent interface {
	Execute(ctx context.Context, in Input) (*Result, error)
}
