// Package diffparse parses unified-diff text into structured per-file patches.
package diffparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Operation is the file-level change kind, derived from the /dev/null markers
// on the source/target lines rather than stored from caller intent.
type Operation string

const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
)

// LineType classifies a single diff line.
type LineType string

const (
	LineContext LineType = "context"
	LineAdd     LineType = "add"
	LineRemove  LineType = "remove"
)

// DiffLine is one line of a hunk.
type DiffLine struct {
	Type    LineType
	Content string
}

// Hunk is one @@-delimited region of change within a file section.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []DiffLine
}

// FilePatch is the parsed change set for a single file.
type FilePatch struct {
	Path  string
	Op    Operation
	Hunks []Hunk
}

// ParsedPatch is the full parse result, file sections in source order.
type ParsedPatch struct {
	Files []FilePatch
}

// FormatError reports unparseable diff text.
type FormatError struct {
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("diff format: %s", e.Message)
}

var (
	fileHeaderRe = regexp.MustCompile(`^diff --git a/(.+) b/(.+)$`)
	hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
)

// Parse converts unified-diff text into a ParsedPatch. It fails with a
// *FormatError when the text is empty/whitespace or contains no file header.
// Both \n and \r\n line endings are accepted.
func Parse(text string) (*ParsedPatch, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &FormatError{Message: "patch text is empty"}
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	// Index the start of every file section.
	var starts []int
	for i, line := range lines {
		if fileHeaderRe.MatchString(line) {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return nil, &FormatError{Message: "no file header (diff --git) found"}
	}

	parsed := &ParsedPatch{}
	for si, start := range starts {
		end := len(lines)
		if si+1 < len(starts) {
			end = starts[si+1]
		}
		fp, err := parseFileSection(lines[start:end])
		if err != nil {
			return nil, err
		}
		parsed.Files = append(parsed.Files, *fp)
	}
	return parsed, nil
}

// parseFileSection parses one diff --git section into a FilePatch.
func parseFileSection(lines []string) (*FilePatch, error) {
	header := fileHeaderRe.FindStringSubmatch(lines[0])

	var oldPath, newPath string
	hunkStart := -1
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "--- "):
			oldPath = strings.TrimSpace(strings.TrimPrefix(line, "--- "))
		case strings.HasPrefix(line, "+++ "):
			newPath = strings.TrimSpace(strings.TrimPrefix(line, "+++ "))
		}
		if hunkHeaderRe.MatchString(line) {
			hunkStart = i
			break
		}
	}

	fp := &FilePatch{}
	switch {
	case oldPath == "/dev/null":
		fp.Op = OpCreate
		fp.Path = stripPathPrefix(newPath)
	case newPath == "/dev/null":
		fp.Op = OpDelete
		fp.Path = stripPathPrefix(oldPath)
	default:
		fp.Op = OpModify
		fp.Path = stripPathPrefix(newPath)
	}
	if fp.Path == "" && header != nil {
		// Header-only section (e.g. mode change with no ---/+++ lines).
		fp.Path = header[2]
		fp.Op = OpModify
	}
	if fp.Path == "" {
		return nil, &FormatError{Message: fmt.Sprintf("file section %q has no resolvable path", lines[0])}
	}

	if hunkStart == -1 {
		return fp, nil
	}

	var current *Hunk
	oldSeen, newSeen := 0, 0
	for _, line := range lines[hunkStart:] {
		if m := hunkHeaderRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				fp.Hunks = append(fp.Hunks, *current)
			}
			current = &Hunk{
				OldStart: atoiDefault(m[1], 1),
				OldLines: atoiDefault(m[2], 1),
				NewStart: atoiDefault(m[3], 1),
				NewLines: atoiDefault(m[4], 1),
			}
			oldSeen, newSeen = 0, 0
			continue
		}
		if current == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+"):
			current.Lines = append(current.Lines, DiffLine{Type: LineAdd, Content: line[1:]})
			newSeen++
		case strings.HasPrefix(line, "-"):
			current.Lines = append(current.Lines, DiffLine{Type: LineRemove, Content: line[1:]})
			oldSeen++
		case strings.HasPrefix(line, " "):
			current.Lines = append(current.Lines, DiffLine{Type: LineContext, Content: line[1:]})
			oldSeen++
			newSeen++
		case line == "":
			// A bare empty line is an empty context line only while the hunk
			// header's line counts are unsatisfied; trailing blank lines at
			// the end of a section are ignored.
			if oldSeen < current.OldLines && newSeen < current.NewLines {
				current.Lines = append(current.Lines, DiffLine{Type: LineContext, Content: ""})
				oldSeen++
				newSeen++
			}
		}
		// "\ No newline at end of file" and git metadata lines are skipped.
	}
	if current != nil {
		fp.Hunks = append(fp.Hunks, *current)
	}
	return fp, nil
}

// stripPathPrefix removes the conventional a/ or b/ prefix from a diff path.
func stripPathPrefix(p string) string {
	if p == "" || p == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}

// atoiDefault parses s, returning def when s is empty (omitted hunk length).
func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
