package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// createDir creates root/name with the given modification time.
func createDir(t *testing.T, root, name string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("creating %s: %v", name, err)
	}
	if err := os.WriteFile(filepath.Join(path, "diff.patch"), []byte("+x\n"), 0644); err != nil {
		t.Fatalf("writing attachment: %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("setting mtime of %s: %v", name, err)
	}
}

func TestPruneStale_RemovesOldDirs(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	createDir(t, root, "ocmt-old", now.Add(-48*time.Hour))
	createDir(t, root, "ocmt-fresh", now.Add(-time.Hour))

	pruned, err := PruneStale(root, "ocmt-", DefaultMaxAge, false)
	if err != nil {
		t.Fatalf("PruneStale failed: %v", err)
	}
	if len(pruned) != 1 || pruned[0] != "ocmt-old" {
		t.Errorf("expected pruned=[ocmt-old], got %v", pruned)
	}
	if _, err := os.Stat(filepath.Join(root, "ocmt-old")); !os.IsNotExist(err) {
		t.Errorf("expected ocmt-old to be deleted")
	}
	if _, err := os.Stat(filepath.Join(root, "ocmt-fresh")); err != nil {
		t.Errorf("expected ocmt-fresh to still exist: %v", err)
	}
}

func TestPruneStale_IgnoresOtherPrefixes(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-72 * time.Hour)
	createDir(t, root, "go-build123", old)
	if err := os.WriteFile(filepath.Join(root, "ocmt-file"), nil, 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	pruned, err := PruneStale(root, "ocmt-", DefaultMaxAge, false)
	if err != nil {
		t.Fatalf("PruneStale failed: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("expected no pruned dirs, got %v", pruned)
	}
	if _, err := os.Stat(filepath.Join(root, "go-build123")); err != nil {
		t.Errorf("expected go-build123 to still exist: %v", err)
	}
}

func TestPruneStale_DryRun(t *testing.T) {
	root := t.TempDir()
	createDir(t, root, "ocmt-b", time.Now().Add(-30*time.Hour))
	createDir(t, root, "ocmt-a", time.Now().Add(-40*time.Hour))

	pruned, err := PruneStale(root, "ocmt-", DefaultMaxAge, true)
	if err != nil {
		t.Fatalf("PruneStale dry-run failed: %v", err)
	}
	if len(pruned) != 2 || pruned[0] != "ocmt-a" || pruned[1] != "ocmt-b" {
		t.Errorf("expected pruned=[ocmt-a ocmt-b], got %v", pruned)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 2 {
		t.Errorf("expected 2 dirs to remain in dry-run, got %d", len(entries))
	}
}

func TestPruneStale_NonexistentRoot(t *testing.T) {
	pruned, err := PruneStale("/nonexistent/path", "ocmt-", DefaultMaxAge, false)
	if err != nil {
		t.Fatalf("expected nil error for nonexistent dir, got: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("expected empty pruned list, got %v", pruned)
	}
}
