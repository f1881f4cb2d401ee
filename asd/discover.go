package asd

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// FindSidecarFiles locates .asd files under a project directory. Live
// keeps them in the "Ableton Project Info" folder or next to the source
// audio under Samples, but stray copies appear anywhere, so the whole
// tree is walked. Unreadable subtrees are skipped, not reported.
func FindSidecarFiles(projectDir string) []string {
	found := []string{}
	seen := map[string]bool{}

	_ = filepath.WalkDir(projectDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".asd") && !seen[path] {
			found = append(found, path)
			seen[path] = true
		}
		return nil
	})

	return found
}
