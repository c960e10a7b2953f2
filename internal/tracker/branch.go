package tracker

import (
	"os"
	"path/filepath"
	"strings"
)

// liveBranch reads the current branch straight from .git/HEAD, walking up
// parent directories so worktree subpaths still resolve. No subprocess, no
// git binary required. Detached HEAD or any read failure yields "".
func liveBranch(cwd string) string {
	if cwd == "" {
		return ""
	}

	head := ""
	dir := filepath.Clean(cwd)
	for {
		candidate := filepath.Join(dir, ".git", "HEAD")
		if _, err := os.Stat(candidate); err == nil {
			head = candidate
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}

	data, err := os.ReadFile(head)
	if err != nil {
		return ""
	}
	line := strings.TrimSpace(string(data))
	if name, ok := strings.CutPrefix(line, "ref: refs/heads/"); ok {
		return name
	}
	return ""
}
