package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/iHildy/ocmt/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dirtyRepo has a staged edit, an unstaged edit and an untracked file.
func dirtyRepo(t *testing.T) (string, *Repo) {
	t.Helper()
	dir := testutil.TempRepo(t, map[string]string{
		"staged.go":   "package a\n",
		"unstaged.go": "package a\n",
	})
	testutil.WriteFiles(t, dir, map[string]string{
		"staged.go":   "package a\n\n// staged\n",
		"unstaged.go": "package a\n\n// unstaged\n",
		"new.txt":     "untracked\n",
	})
	testutil.Git(t, dir, "add", "staged.go")
	return dir, &Repo{Dir: dir}
}

func TestSnapshotLeavesStateUntouched(t *testing.T) {
	dir, repo := dirtyRepo(t)
	ctx := context.Background()

	before := testutil.Git(t, dir, "status", "--porcelain")
	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, testutil.Git(t, dir, "status", "--porcelain"))

	assert.Equal(t, []string{"staged.go"}, snap.Staged)
	assert.NotEmpty(t, snap.Head)
	assert.Equal(t, snap.Head, testutil.Git(t, dir, "rev-parse", snap.Index+"^1"))
	assert.Equal(t, snap.Index, testutil.Git(t, dir, "rev-parse", snap.Commit+"^2"))
	assert.Equal(t, snap.Commit, testutil.Git(t, dir, "rev-parse", SnapshotRef))

	require.NoError(t, repo.Release(ctx))
}

func TestSnapshotRestore(t *testing.T) {
	dir, repo := dirtyRepo(t)
	ctx := context.Background()

	before := testutil.Git(t, dir, "status", "--porcelain")
	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)

	// Simulate an automated edit across staged, unstaged and deleted files.
	testutil.WriteFiles(t, dir, map[string]string{
		"staged.go":   "package a\n\n// rewritten\n",
		"unstaged.go": "package a\n",
	})
	require.NoError(t, os.Remove(filepath.Join(dir, "new.txt")))
	testutil.Git(t, dir, "add", "-A")

	diff, err := repo.DiffAgainst(ctx, snap)
	require.NoError(t, err)
	assert.Contains(t, diff, "+// rewritten")

	require.NoError(t, repo.Restore(ctx, snap))
	assert.Equal(t, "package a\n\n// staged\n", testutil.ReadFile(t, dir, "staged.go"))
	assert.Equal(t, "package a\n\n// unstaged\n", testutil.ReadFile(t, dir, "unstaged.go"))
	assert.Equal(t, "untracked\n", testutil.ReadFile(t, dir, "new.txt"))
	assert.Equal(t, before, testutil.Git(t, dir, "status", "--porcelain"))
}

func TestSnapshotRestageKeepsEdits(t *testing.T) {
	dir, repo := dirtyRepo(t)
	ctx := context.Background()

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)

	testutil.WriteFiles(t, dir, map[string]string{"staged.go": "package a\n\n// cleaned\n"})
	require.NoError(t, repo.Restage(ctx, snap.Staged))

	diff, err := repo.StagedDiff(ctx)
	require.NoError(t, err)
	assert.Contains(t, diff, "+// cleaned")
	assert.NotContains(t, diff, "unstaged")
}

func TestSnapshotUnbornBranch(t *testing.T) {
	dir := testutil.TempRepo(t, nil)
	ctx := context.Background()
	repo := &Repo{Dir: dir}

	testutil.WriteFiles(t, dir, map[string]string{"first.go": "package a\n"})
	testutil.Git(t, dir, "add", "first.go")

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Head)

	testutil.WriteFiles(t, dir, map[string]string{"first.go": "package b\n"})
	require.NoError(t, repo.Restore(ctx, snap))
	assert.Equal(t, "package a\n", testutil.ReadFile(t, dir, "first.go"))
}

func TestRestoreUnknownSnapshot(t *testing.T) {
	dir := testutil.TempRepo(t, map[string]string{"a": "a"})
	repo := &Repo{Dir: dir}

	err := repo.Restore(context.Background(), &Snapshot{Commit: "0000000000000000000000000000000000000000"})
	require.ErrorIs(t, err, ErrRestoreIncomplete)
}
