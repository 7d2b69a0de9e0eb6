// Package testutil provides test helper utilities for ocmt tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFiles writes files (relative path -> content) under dir, creating
// directories as needed.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}
}

// TempRepo creates a git repository in a temporary directory whose first
// commit contains files, and returns its path. The test is skipped when git
// is not installed. An empty files map leaves the branch unborn.
func TempRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	Git(t, dir, "init", "-q", "-b", "main")
	Git(t, dir, "config", "user.name", "ocmt test")
	Git(t, dir, "config", "user.email", "test@ocmt.invalid")
	Git(t, dir, "config", "commit.gpgsign", "false")

	if len(files) > 0 {
		WriteFiles(t, dir, files)
		Git(t, dir, "add", "-A")
		Git(t, dir, "commit", "-q", "-m", "chore: initial commit")
	}
	return dir
}

// Git runs git in dir and fails the test on error. It returns trimmed output.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_CONFIG_NOSYSTEM=1", "HOME="+dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %s: %v", strings.Join(args, " "), out, err)
	}
	return strings.TrimSpace(string(out))
}

// ReadFile returns the content of dir/relPath, failing the test on error.
func ReadFile(t *testing.T, dir, relPath string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, relPath))
	if err != nil {
		t.Fatalf("reading %s: %v", relPath, err)
	}
	return string(data)
}
