// Package workspace owns the isolated, disposable directory a single pipeline
// run mutates. All file mutation goes through the patch engine so every change
// is recorded in the undo log.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/patchwork-labs/pilot/internal/diffparse"
	"github.com/patchwork-labs/pilot/internal/patch"
)

// Kind gates whether compilation validation runs against the workspace.
type Kind string

const (
	Production Kind = "production"
	Test       Kind = "test"
)

// Workspace is an isolated directory keyed by a pipeline identifier.
type Workspace struct {
	id     string
	root   string
	kind   Kind
	engine *patch.Engine
}

// Create makes the workspace directory <baseDir>/<pipelineID>. It fails if
// the directory already exists; concurrent runs never share a directory.
func Create(pipelineID, baseDir string, kind Kind) (*Workspace, error) {
	if pipelineID == "" {
		return nil, fmt.Errorf("pipeline id is required")
	}
	root := filepath.Join(baseDir, pipelineID)
	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("workspace for pipeline %s already exists at %s", pipelineID, root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	return &Workspace{
		id:     pipelineID,
		root:   root,
		kind:   kind,
		engine: patch.NewEngine(root),
	}, nil
}

// ID returns the owning pipeline identifier.
func (w *Workspace) ID() string { return w.id }

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// Kind returns the workspace type tag.
func (w *Workspace) Kind() Kind { return w.kind }

// ApplyPatch applies a parsed unified diff transactionally.
func (w *Workspace) ApplyPatch(p *diffparse.ParsedPatch) (*patch.Result, error) {
	return w.engine.ApplyPatch(p)
}

// ApplyOperations applies a line-indexed operation list transactionally.
func (w *Workspace) ApplyOperations(ops *patch.FileOperations) (*patch.Result, error) {
	return w.engine.ApplyOperations(ops)
}

// Rollback restores every file touched since the last rollback (or creation)
// and clears the undo log.
func (w *Workspace) Rollback() {
	w.engine.Rollback()
}

// AppliedFiles returns the created and modified paths in application order.
func (w *Workspace) AppliedFiles() []string {
	return w.engine.AppliedFiles()
}

// Cleanup removes the workspace directory. Idempotent; errors are swallowed
// since cleanup is best-effort and must never mask the primary result.
func (w *Workspace) Cleanup() {
	_ = os.RemoveAll(w.root)
}

// Exists reports whether the workspace directory is still present.
func (w *Workspace) Exists() bool {
	_, err := os.Stat(w.root)
	return err == nil
}
