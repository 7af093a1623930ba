package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Directories never copied into the sandbox.
var skippedDirs = map[string]bool{
	".git":         true,
	"bin":          true,
	"obj":          true,
	"node_modules": true,
	"worktrees":    true,
}

// metadataNames are build/project files staged regardless of extension rules.
var metadataNames = map[string]bool{
	"global.json":             true,
	"Directory.Build.props":   true,
	"Directory.Build.targets": true,
	"Directory.Packages.props": true,
	"NuGet.config":            true,
	".editorconfig":           true,
}

// stagedExtensions are source/config extensions copied from the origin repo.
var stagedExtensions = map[string]bool{
	".cs":     true,
	".csproj": true,
	".sln":    true,
	".props":  true,
	".json":   true,
	".config": true,
}

// Stage copies build metadata and non-generated domain files from the
// originating repository into the sandbox so agents see real project context.
// Staged files are a baseline, not agent output: they bypass the undo log.
func (w *Workspace) Stage(srcRepo string) error {
	info, err := os.Stat(srcRepo)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("source repo %s is not a directory", srcRepo)
	}

	return filepath.Walk(srcRepo, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcRepo, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if fi.IsDir() {
			if skippedDirs[fi.Name()] || strings.HasPrefix(fi.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !shouldStage(fi.Name()) {
			return nil
		}
		dst := filepath.Join(w.root, rel)
		if err := copyFile(path, dst); err != nil {
			return fmt.Errorf("stage %s: %w", rel, err)
		}
		return nil
	})
}

func shouldStage(name string) bool {
	if metadataNames[name] {
		return true
	}
	return stagedExtensions[strings.ToLower(filepath.Ext(name))]
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
