package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Structure describes where the main and test projects live inside the
// workspace, used to give later stages accurate path context.
type Structure struct {
	MainProjectDir  string   `json:"main_project_dir,omitempty"`
	TestProjectDirs []string `json:"test_project_dirs,omitempty"`
}

// testFrameworkRefs mark a project file as test infrastructure.
var testFrameworkRefs = []string{
	"Microsoft.NET.Test.Sdk",
	"xunit",
	"NUnit",
	"MSTest",
}

// testAttributeRe matches C# test-method attribute markers.
var testAttributeRe = regexp.MustCompile(`\[\s*(Test|Fact|Theory|TestMethod|TestCase)\b`)

// Analyze detects main vs test project directories by directory-name
// heuristic and by test-framework package references in project files.
func (w *Workspace) Analyze() (*Structure, error) {
	s := &Structure{}
	err := filepath.Walk(w.root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csproj") {
			return nil
		}
		rel, err := filepath.Rel(w.root, filepath.Dir(path))
		if err != nil {
			return err
		}
		if isTestProject(path, filepath.Base(filepath.Dir(path))) {
			s.TestProjectDirs = append(s.TestProjectDirs, rel)
		} else if s.MainProjectDir == "" {
			s.MainProjectDir = rel
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("analyze workspace: %w", err)
	}
	return s, nil
}

func isTestProject(projectFile, dirName string) bool {
	lower := strings.ToLower(dirName)
	if strings.Contains(lower, "test") || strings.Contains(lower, "spec") {
		return true
	}
	data, err := os.ReadFile(projectFile)
	if err != nil {
		return false
	}
	content := string(data)
	for _, ref := range testFrameworkRefs {
		if strings.Contains(content, ref) {
			return true
		}
	}
	return false
}

// ValidatePlacement checks that every applied file recognizable as a test
// file (by attribute markers) lives under a directory containing a project
// descriptor. Returns an error naming the offending paths.
func (w *Workspace) ValidatePlacement(paths []string) error {
	var offending []string
	for _, rel := range paths {
		abs := filepath.Join(w.root, filepath.FromSlash(rel))
		if !isTestFile(abs) {
			continue
		}
		if !hasProjectDescriptor(w.root, filepath.Dir(abs)) {
			offending = append(offending, rel)
		}
	}
	if len(offending) > 0 {
		return fmt.Errorf("test files placed outside any project: %s", strings.Join(offending, ", "))
	}
	return nil
}

func isTestFile(path string) bool {
	if !strings.EqualFold(filepath.Ext(path), ".cs") {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return testAttributeRe.Match(data)
}

// hasProjectDescriptor walks from dir up to root looking for a *.csproj.
func hasProjectDescriptor(root, dir string) bool {
	for {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.csproj"))
		if len(matches) > 0 {
			return true
		}
		if dir == root || len(dir) < len(root) {
			return false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}
