package prompt

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	listingMaxDepth   = 2
	listingMaxEntries = 200
)

var listingSkip = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, ".venv": true,
	"dist": true, "build": true, "target": true, ".cache": true, "todo.md": true,
}

// renderWorkspaceListing walks root up to listingMaxDepth deep, skipping the
// conventional build/VCS/cache directories and todo.md/*.pyc files, and
// stops after listingMaxEntries lines (appending a truncation marker rather
// than silently dropping the rest).
func renderWorkspaceListing(root string) string {
	if root == "" {
		return "(no workspace root configured)"
	}
	var lines []string
	truncated := false

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort listing, unreadable entries are skipped
		}
		rel, _ := filepath.Rel(root, path)
		if rel == "." {
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator)) + 1
		name := d.Name()
		if listingSkip[name] || (!d.IsDir() && strings.HasSuffix(name, ".pyc")) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if depth > listingMaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if len(lines) >= listingMaxEntries {
			truncated = true
			return filepath.SkipAll
		}
		suffix := ""
		if d.IsDir() {
			suffix = "/"
		}
		lines = append(lines, rel+suffix)
		return nil
	})
	if err != nil {
		return "(workspace listing unavailable: " + err.Error() + ")"
	}

	sort.Strings(lines)
	out := strings.Join(lines, "\n")
	if truncated {
		out += "\n... (truncated)"
	}
	if out == "" {
		if _, statErr := os.Stat(root); statErr != nil {
			return "(workspace root not found)"
		}
		return "(empty workspace)"
	}
	return out
}
