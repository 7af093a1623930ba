package buildcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// knownNamespaces maps well-known type names to the namespace whose using
// directive resolves them.
var knownNamespaces = map[string]string{
	"List":              "System.Collections.Generic",
	"Dictionary":        "System.Collections.Generic",
	"HashSet":           "System.Collections.Generic",
	"Queue":             "System.Collections.Generic",
	"Stack":             "System.Collections.Generic",
	"IEnumerable":       "System.Collections.Generic",
	"IList":             "System.Collections.Generic",
	"IDictionary":       "System.Collections.Generic",
	"Task":              "System.Threading.Tasks",
	"ValueTask":         "System.Threading.Tasks",
	"CancellationToken": "System.Threading",
	"HttpClient":        "System.Net.Http",
	"HttpRequestMessage": "System.Net.Http",
	"Regex":             "System.Text.RegularExpressions",
	"StringBuilder":     "System.Text",
	"Encoding":          "System.Text",
	"JsonSerializer":    "System.Text.Json",
	"Path":              "System.IO",
	"Directory":         "System.IO",
	"FileStream":        "System.IO",
	"StreamReader":      "System.IO",
	"StreamWriter":      "System.IO",
	"Stopwatch":         "System.Diagnostics",
	"Debug":             "System.Diagnostics",
	"CultureInfo":       "System.Globalization",
	"Linq":              "System.Linq",
}

// FixReport summarizes one auto-fix pass.
type FixReport struct {
	Rounds     int      `json:"rounds"`
	Insertions []string `json:"insertions,omitempty"` // "file: using NS;"
}

// ValidateAndFix builds the workspace and, on failure, attempts up to
// maxRounds passes of missing-using insertion for unknown-type errors,
// re-validating after each pass. It stops early when no file can be further
// fixed. The returned BuildResult is the final build state.
func (v *Validator) ValidateAndFix(ctx context.Context, dir string, maxRounds int) (*BuildResult, *FixReport, error) {
	report := &FixReport{}

	res, err := v.Validate(ctx, dir)
	if err != nil {
		return nil, report, err
	}
	if res.Passed {
		return res, report, nil
	}

	for round := 1; round <= maxRounds; round++ {
		inserted, err := v.insertMissingUsings(dir, res.Errors, report)
		if err != nil {
			return res, report, err
		}
		if inserted == 0 {
			// Nothing fixable remains; the current output is final.
			return res, report, nil
		}
		report.Rounds = round

		res, err = v.Validate(ctx, dir)
		if err != nil {
			return nil, report, err
		}
		if res.Passed {
			return res, report, nil
		}
	}
	return res, report, nil
}

// insertMissingUsings groups unknown-type diagnostics by file and inserts the
// resolved using directives after any existing usings at the top of the file.
// Returns the number of directives inserted.
func (v *Validator) insertMissingUsings(dir string, diags []Diagnostic, report *FixReport) (int, error) {
	perFile := make(map[string]map[string]bool)
	for _, d := range diags {
		if d.MissingType == "" {
			continue
		}
		ns, ok := knownNamespaces[d.MissingType]
		if !ok {
			continue
		}
		if perFile[d.File] == nil {
			perFile[d.File] = make(map[string]bool)
		}
		perFile[d.File][ns] = true
	}

	total := 0
	for file, namespaces := range perFile {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, file)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue // diagnostic may reference a generated file
		}
		content := string(data)

		var missing []string
		for ns := range namespaces {
			if !strings.Contains(content, "using "+ns+";") {
				missing = append(missing, ns)
			}
		}
		if len(missing) == 0 {
			continue
		}
		sort.Strings(missing)

		updated := insertUsings(content, missing)
		if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
			return total, fmt.Errorf("write %s: %w", file, err)
		}
		for _, ns := range missing {
			report.Insertions = append(report.Insertions, fmt.Sprintf("%s: using %s;", file, ns))
		}
		total += len(missing)
	}
	return total, nil
}

// insertUsings places using directives after the last existing using line, or
// at the top of the file when there are none.
func insertUsings(content string, namespaces []string) string {
	lines := strings.Split(content, "\n")
	insertAt := 0
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "using ") {
			insertAt = i + 1
		}
	}

	var directives []string
	for _, ns := range namespaces {
		directives = append(directives, "using "+ns+";")
	}

	out := make([]string, 0, len(lines)+len(directives))
	out = append(out, lines[:insertAt]...)
	out = append(out, directives...)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, "\n")
}
