package patch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// FileOperations is the line-indexed alternative to a unified diff. Both
// formats share the engine's undo log, so rollback behaves identically.
type FileOperations struct {
	Operations []FileOperation `json:"operations"`
}

// FileOperation is a single file-level edit.
type FileOperation struct {
	Type    string       `json:"type"` // create, modify, delete, rename
	Path    string       `json:"path,omitempty"`
	Content string       `json:"content,omitempty"`
	Changes []LineChange `json:"changes,omitempty"`
	OldPath string       `json:"old_path,omitempty"`
	NewPath string       `json:"new_path,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

// LineChange replaces a line range starting at LineNumber (1-based).
type LineChange struct {
	LineNumber     int    `json:"line_number"`
	OldContent     string `json:"old_content"`
	NewContent     string `json:"new_content"`
	LinesToReplace int    `json:"lines_to_replace"`
}

// ErrNoOperations signals that the text carries no file_operations payload;
// callers fall back to unified-diff parsing.
var ErrNoOperations = errors.New("no file_operations payload found")

type operationsEnvelope struct {
	FileOperations *FileOperations `json:"file_operations"`
}

// ParseOperations extracts a file_operations JSON envelope from agent output,
// tolerating surrounding prose.
func ParseOperations(text string) (*FileOperations, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, ErrNoOperations
	}
	var env operationsEnvelope
	if err := json.Unmarshal([]byte(text[start:end+1]), &env); err != nil {
		return nil, ErrNoOperations
	}
	if env.FileOperations == nil || len(env.FileOperations.Operations) == 0 {
		return nil, ErrNoOperations
	}
	return env.FileOperations, nil
}

// ApplyOperations applies a line-indexed operation list with the same
// all-or-nothing guarantee as ApplyPatch.
func (e *Engine) ApplyOperations(ops *FileOperations) (*Result, error) {
	mark := len(e.log)
	res := &Result{Success: true}
	for i := range ops.Operations {
		op := &ops.Operations[i]
		path := op.Path
		if op.Type == "rename" {
			path = op.OldPath
		}
		if err := e.applyOperation(op); err != nil {
			res.Success = false
			res.Files = append(res.Files, FileResult{Path: path, Op: Op(op.Type), Err: err.Error()})
			e.rollbackTo(mark)
			return res, err
		}
		res.Files = append(res.Files, FileResult{Path: path, Op: Op(op.Type), OK: true})
	}
	return res, nil
}

func (e *Engine) applyOperation(op *FileOperation) error {
	switch op.Type {
	case "create":
		return e.opCreate(op.Path, op.Content)
	case "modify":
		return e.opModify(op.Path, op.Changes)
	case "delete":
		return e.opDelete(op.Path)
	case "rename":
		return e.opRename(op.OldPath, op.NewPath)
	}
	return &ApplyError{Path: op.Path, Message: fmt.Sprintf("unknown operation type %q", op.Type)}
}

func (e *Engine) opCreate(path, content string) error {
	abs, err := e.abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err == nil {
		return &ApplyError{Path: path, Message: "create target already exists"}
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return &ApplyError{Path: path, Message: fmt.Sprintf("mkdir: %v", err)}
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return &ApplyError{Path: path, Message: fmt.Sprintf("write: %v", err)}
	}
	e.log = append(e.log, AppliedChange{Path: path, Op: OpCreate})
	return nil
}

func (e *Engine) opModify(path string, changes []LineChange) error {
	abs, err := e.abs(path)
	if err != nil {
		return err
	}
	current, rerr := os.ReadFile(abs)
	if rerr != nil {
		return &ApplyError{Path: path, Message: "modify target does not exist"}
	}

	lines, trailingNewline := splitLines(string(current))

	// Apply in descending line order so earlier replacements don't shift
	// later offsets.
	ordered := slices.Clone(changes)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].LineNumber > ordered[j].LineNumber
	})

	for _, ch := range ordered {
		idx := ch.LineNumber - 1
		if idx < 0 || idx >= len(lines) {
			return &ApplyError{
				Path:     path,
				Line:     ch.LineNumber,
				Expected: ch.OldContent,
				Actual:   "<end of file>",
			}
		}
		if ch.OldContent != "" {
			expectedFirst := strings.SplitN(ch.OldContent, "\n", 2)[0]
			if !lineMatches(lines[idx], expectedFirst) {
				return &ApplyError{
					Path:     path,
					Line:     ch.LineNumber,
					Expected: expectedFirst,
					Actual:   lines[idx],
				}
			}
		}
		n := ch.LinesToReplace
		if n <= 0 {
			n = 1
		}
		if idx+n > len(lines) {
			n = len(lines) - idx
		}
		var replacement []string
		if ch.NewContent != "" {
			replacement = strings.Split(ch.NewContent, "\n")
		}
		lines = slices.Replace(lines, idx, idx+n, replacement...)
	}

	out := strings.Join(lines, "\n")
	if trailingNewline {
		out += "\n"
	}
	if err := os.WriteFile(abs, []byte(out), 0o644); err != nil {
		return &ApplyError{Path: path, Message: fmt.Sprintf("write: %v", err)}
	}
	e.log = append(e.log, AppliedChange{Path: path, Op: OpModify, Backup: current})
	return nil
}

func (e *Engine) opDelete(path string) error {
	abs, err := e.abs(path)
	if err != nil {
		return err
	}
	current, rerr := os.ReadFile(abs)
	if rerr != nil {
		return &ApplyError{Path: path, Message: "delete target does not exist"}
	}
	if err := os.Remove(abs); err != nil {
		return &ApplyError{Path: path, Message: fmt.Sprintf("remove: %v", err)}
	}
	e.log = append(e.log, AppliedChange{Path: path, Op: OpDelete, Backup: current})
	return nil
}

// opRename is recorded as delete(old)+create(new) so reverse replay restores
// the original file and removes the renamed one.
func (e *Engine) opRename(oldPath, newPath string) error {
	oldAbs, err := e.abs(oldPath)
	if err != nil {
		return err
	}
	newAbs, err := e.abs(newPath)
	if err != nil {
		return err
	}
	current, rerr := os.ReadFile(oldAbs)
	if rerr != nil {
		return &ApplyError{Path: oldPath, Message: "rename source does not exist"}
	}
	if _, err := os.Stat(newAbs); err == nil {
		return &ApplyError{Path: newPath, Message: "rename target already exists"}
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return &ApplyError{Path: newPath, Message: fmt.Sprintf("mkdir: %v", err)}
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return &ApplyError{Path: oldPath, Message: fmt.Sprintf("rename: %v", err)}
	}
	e.log = append(e.log,
		AppliedChange{Path: oldPath, Op: OpDelete, Backup: current},
		AppliedChange{Path: newPath, Op: OpCreate},
	)
	return nil
}
