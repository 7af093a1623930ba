// Package patch applies structured patches to files under a root directory,
// keeping an append-only undo log so any prefix of applied changes can be
// rolled back exactly.
package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/patchwork-labs/pilot/internal/diffparse"
)

// Op is the change kind recorded in the undo log.
type Op string

const (
	OpCreate Op = "create"
	OpModify Op = "modify"
	OpDelete Op = "delete"
)

// AppliedChange is one undo-log entry. Backup is the pre-change file content
// for modify/delete and nil for create.
type AppliedChange struct {
	Path   string
	Op     Op
	Backup []byte
}

// ApplyError reports a per-file application failure.
type ApplyError struct {
	Path     string
	Line     int
	Expected string
	Actual   string
	Message  string
}

func (e *ApplyError) Error() string {
	if e.Expected != "" || e.Actual != "" {
		return fmt.Sprintf("apply %s: line %d: expected %q, got %q", e.Path, e.Line, e.Expected, e.Actual)
	}
	return fmt.Sprintf("apply %s: %s", e.Path, e.Message)
}

// FileResult is the outcome of one file-level operation within an apply call.
type FileResult struct {
	Path string `json:"path"`
	Op   Op     `json:"op"`
	OK   bool   `json:"ok"`
	Err  string `json:"err,omitempty"`
}

// Result is the outcome of a full apply call.
type Result struct {
	Success bool         `json:"success"`
	Files   []FileResult `json:"files"`
}

// Engine applies patches under a root directory. Not safe for concurrent use;
// each pipeline run owns its engine exclusively.
type Engine struct {
	root string
	log  []AppliedChange
}

// NewEngine creates an Engine rooted at dir.
func NewEngine(dir string) *Engine {
	return &Engine{root: dir}
}

// ApplyPatch applies a parsed unified diff. All-or-nothing: the first
// file-level failure rolls back every change applied so far in this call
// before the error is returned.
func (e *Engine) ApplyPatch(p *diffparse.ParsedPatch) (*Result, error) {
	mark := len(e.log)
	res := &Result{Success: true}
	for i := range p.Files {
		fp := &p.Files[i]
		if err := e.applyFilePatch(fp); err != nil {
			res.Success = false
			res.Files = append(res.Files, FileResult{Path: fp.Path, Op: Op(fp.Op), Err: err.Error()})
			e.rollbackTo(mark)
			return res, err
		}
		res.Files = append(res.Files, FileResult{Path: fp.Path, Op: Op(fp.Op), OK: true})
	}
	return res, nil
}

// Rollback replays the undo log in reverse, restoring every touched file to
// its pre-apply content. I/O errors during rollback are swallowed; the log is
// cleared afterward.
func (e *Engine) Rollback() {
	e.rollbackTo(0)
}

// AppliedFiles returns the created and modified paths, in application order.
func (e *Engine) AppliedFiles() []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range e.log {
		if c.Op == OpDelete || seen[c.Path] {
			continue
		}
		seen[c.Path] = true
		out = append(out, c.Path)
	}
	return out
}

// Log returns a copy of the undo log for inspection.
func (e *Engine) Log() []AppliedChange {
	return slices.Clone(e.log)
}

func (e *Engine) rollbackTo(mark int) {
	for i := len(e.log) - 1; i >= mark; i-- {
		e.undo(e.log[i])
	}
	e.log = e.log[:mark]
}

func (e *Engine) undo(c AppliedChange) {
	abs, err := e.abs(c.Path)
	if err != nil {
		return
	}
	switch c.Op {
	case OpCreate:
		_ = os.Remove(abs)
	case OpModify, OpDelete:
		// Recreate parents in case a restored delete lived in a directory
		// that no longer exists.
		_ = os.MkdirAll(filepath.Dir(abs), 0o755)
		_ = os.WriteFile(abs, c.Backup, 0o644)
	}
}

// abs resolves a patch path against the root, rejecting escapes.
func (e *Engine) abs(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", &ApplyError{Path: rel, Message: "absolute paths are not allowed"}
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", &ApplyError{Path: rel, Message: "path escapes the workspace root"}
	}
	return filepath.Join(e.root, clean), nil
}

func (e *Engine) applyFilePatch(fp *diffparse.FilePatch) error {
	abs, err := e.abs(fp.Path)
	if err != nil {
		return err
	}
	switch fp.Op {
	case diffparse.OpCreate:
		if _, err := os.Stat(abs); err == nil {
			return &ApplyError{Path: fp.Path, Message: "create target already exists"}
		}
		content := buildCreateContent(fp.Hunks)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return &ApplyError{Path: fp.Path, Message: fmt.Sprintf("mkdir: %v", err)}
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return &ApplyError{Path: fp.Path, Message: fmt.Sprintf("write: %v", err)}
		}
		e.log = append(e.log, AppliedChange{Path: fp.Path, Op: OpCreate})
		return nil

	case diffparse.OpModify:
		current, err := os.ReadFile(abs)
		if err != nil {
			return &ApplyError{Path: fp.Path, Message: "modify target does not exist"}
		}
		updated, aerr := applyHunks(fp.Path, string(current), fp.Hunks)
		if aerr != nil {
			return aerr
		}
		if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
			return &ApplyError{Path: fp.Path, Message: fmt.Sprintf("write: %v", err)}
		}
		e.log = append(e.log, AppliedChange{Path: fp.Path, Op: OpModify, Backup: current})
		return nil

	case diffparse.OpDelete:
		current, err := os.ReadFile(abs)
		if err != nil {
			return &ApplyError{Path: fp.Path, Message: "delete target does not exist"}
		}
		if err := os.Remove(abs); err != nil {
			return &ApplyError{Path: fp.Path, Message: fmt.Sprintf("remove: %v", err)}
		}
		e.log = append(e.log, AppliedChange{Path: fp.Path, Op: OpDelete, Backup: current})
		return nil
	}
	return &ApplyError{Path: fp.Path, Message: fmt.Sprintf("unknown operation %q", fp.Op)}
}

// buildCreateContent reconstructs a new file purely from the hunks' add lines.
func buildCreateContent(hunks []diffparse.Hunk) string {
	var lines []string
	for _, h := range hunks {
		for _, dl := range h.Lines {
			if dl.Type == diffparse.LineAdd {
				lines = append(lines, dl.Content)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// applyHunks applies hunks to content in descending old-start order so earlier
// edits don't invalidate later line offsets within the same pass.
func applyHunks(path string, content string, hunks []diffparse.Hunk) (string, *ApplyError) {
	ordered := slices.Clone(hunks)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].OldStart > ordered[j].OldStart
	})

	lines, trailingNewline := splitLines(content)
	for _, h := range ordered {
		pos := h.OldStart - 1
		if pos < 0 {
			pos = 0
		}
		for _, dl := range h.Lines {
			switch dl.Type {
			case diffparse.LineContext, diffparse.LineRemove:
				if pos >= len(lines) {
					return "", &ApplyError{
						Path:     path,
						Line:     pos + 1,
						Expected: dl.Content,
						Actual:   "<end of file>",
					}
				}
				if !lineMatches(lines[pos], dl.Content) {
					return "", &ApplyError{
						Path:     path,
						Line:     pos + 1,
						Expected: dl.Content,
						Actual:   lines[pos],
					}
				}
				if dl.Type == diffparse.LineRemove {
					lines = slices.Delete(lines, pos, pos+1)
				} else {
					pos++
				}
			case diffparse.LineAdd:
				lines = slices.Insert(lines, pos, dl.Content)
				pos++
			}
		}
	}

	out := strings.Join(lines, "\n")
	if trailingNewline {
		out += "\n"
	}
	return out, nil
}

// lineMatches compares a file line against an expected diff line: exact match
// first, then whitespace-normalized (trim + collapse internal runs) to
// tolerate trivial formatting drift.
func lineMatches(actual, expected string) bool {
	if actual == expected {
		return true
	}
	return normalizeWS(actual) == normalizeWS(expected)
}

func normalizeWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitLines splits content on newlines, remembering whether a trailing
// newline must be restored on rejoin.
func splitLines(content string) ([]string, bool) {
	if content == "" {
		return nil, false
	}
	trailing := strings.HasSuffix(content, "\n")
	if trailing {
		content = content[:len(content)-1]
	}
	return strings.Split(content, "\n"), trailing
}
