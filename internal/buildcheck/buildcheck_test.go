package buildcheck

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type mockCmd struct {
	calls   int
	results []cmdResult
}

type cmdResult struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
}

func (m *mockCmd) Run(ctx context.Context, dir string, name string, args ...string) (string, string, int, error) {
	idx := m.calls
	m.calls++
	if idx >= len(m.results) {
		return "", "", 0, nil // default: build passes
	}
	r := m.results[idx]
	return r.stdout, r.stderr, r.exitCode, r.err
}

const cs0246Output = `Src/Calculator.cs(3,12): error CS0246: The type or namespace name 'List<int>' could not be found (are you missing a using directive or an assembly reference?) [App.csproj]
Src/Calculator.cs(7,9): error CS0246: The type or namespace name 'Task' could not be found (are you missing a using directive or an assembly reference?) [App.csproj]
Build FAILED.`

func TestValidate_ParsesDiagnostics(t *testing.T) {
	v := NewValidator(&mockCmd{results: []cmdResult{{stdout: cs0246Output, exitCode: 1}}})
	res, err := v.Validate(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Passed {
		t.Fatal("expected failure")
	}
	if len(res.Errors) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d: %+v", len(res.Errors), res.Errors)
	}
	d := res.Errors[0]
	if d.File != "Src/Calculator.cs" || d.Line != 3 || d.Code != "CS0246" {
		t.Errorf("diagnostic: %+v", d)
	}
	if d.MissingType != "List" {
		t.Errorf("missing type should strip generic args: %q", d.MissingType)
	}
	if res.Errors[1].MissingType != "Task" {
		t.Errorf("second missing type: %q", res.Errors[1].MissingType)
	}
}

func TestValidate_Passes(t *testing.T) {
	v := NewValidator(&mockCmd{results: []cmdResult{{stdout: "Build succeeded.", exitCode: 0}}})
	res, err := v.Validate(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Passed || len(res.Errors) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestValidateAndFix_InsertsUsings(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Src", "Calculator.cs")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatal(err)
	}
	original := "using System;\n\npublic class Calculator\n{\n    List<int> values;\n}\n"
	if err := os.WriteFile(src, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	v := NewValidator(&mockCmd{results: []cmdResult{
		{stdout: cs0246Output, exitCode: 1}, // first build fails
		{stdout: "Build succeeded.", exitCode: 0},
	}})
	res, report, err := v.ValidateAndFix(context.Background(), dir, 5)
	if err != nil {
		t.Fatalf("fix: %v", err)
	}
	if !res.Passed {
		t.Fatalf("expected pass after fix, got %+v", res)
	}
	if report.Rounds != 1 {
		t.Errorf("expected 1 round, got %d", report.Rounds)
	}

	fixed, _ := os.ReadFile(src)
	content := string(fixed)
	if !strings.Contains(content, "using System.Collections.Generic;") {
		t.Errorf("List using not inserted:\n%s", content)
	}
	if !strings.Contains(content, "using System.Threading.Tasks;") {
		t.Errorf("Task using not inserted:\n%s", content)
	}
	// Inserted after the existing using, before the class.
	if strings.Index(content, "using System;") > strings.Index(content, "using System.Collections.Generic;") {
		t.Errorf("usings inserted before existing ones:\n%s", content)
	}
	if strings.Index(content, "using System.Threading.Tasks;") > strings.Index(content, "public class") {
		t.Errorf("usings inserted after class body:\n%s", content)
	}
}

func TestValidateAndFix_StopsWhenNothingFixable(t *testing.T) {
	out := `Src/App.cs(1,1): error CS0246: The type or namespace name 'Frobnicator' could not be found (are you missing a using directive?)`
	mock := &mockCmd{results: []cmdResult{{stdout: out, exitCode: 1}}}
	v := NewValidator(mock)
	res, report, err := v.ValidateAndFix(context.Background(), t.TempDir(), 5)
	if err != nil {
		t.Fatalf("fix: %v", err)
	}
	if res.Passed {
		t.Fatal("unfixable build should remain failed")
	}
	if report.Rounds != 0 {
		t.Errorf("no fix rounds should be counted, got %d", report.Rounds)
	}
	if mock.calls != 1 {
		t.Errorf("no re-validation expected, got %d build calls", mock.calls)
	}
}

func TestValidateAndFix_CapExhausted(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "A.cs")
	if err := os.WriteFile(src, []byte("class A { }\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Every round reports a new fixable missing type so the loop only stops
	// at the cap.
	types := []string{"List", "Task", "Regex", "StringBuilder", "HttpClient", "Stopwatch"}
	var results []cmdResult
	for _, typ := range types {
		results = append(results, cmdResult{
			stdout:   "A.cs(1,1): error CS0246: The type or namespace name '" + typ + "' could not be found",
			exitCode: 1,
		})
	}
	mock := &mockCmd{results: results}
	v := NewValidator(mock)
	res, report, err := v.ValidateAndFix(context.Background(), dir, 3)
	if err != nil {
		t.Fatalf("fix: %v", err)
	}
	if res.Passed {
		t.Fatal("build should still be failing at the cap")
	}
	if report.Rounds != 3 {
		t.Errorf("expected 3 rounds, got %d", report.Rounds)
	}
	if mock.calls != 4 { // initial + one per round
		t.Errorf("expected 4 build calls, got %d", mock.calls)
	}
}

func TestInsertUsings_NoExistingUsings(t *testing.T) {
	out := insertUsings("namespace App;\n\nclass A { }\n", []string{"System.IO"})
	if !strings.HasPrefix(out, "using System.IO;\n") {
		t.Errorf("directive should lead the file:\n%s", out)
	}
}
