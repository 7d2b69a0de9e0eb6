// snapshot.go records the index and work tree as dangling commits so an
// automated edit can be reviewed and reverted without touching the real index.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotRef keeps the latest snapshot reachable until Release.
const SnapshotRef = "refs/ocmt/snapshot"

// ErrRestoreIncomplete means the work tree or index may not match the snapshot.
var ErrRestoreIncomplete = errors.New("restore from snapshot incomplete")

// snapshotIdentity lets commit-tree run without a configured user.
var snapshotIdentity = []string{
	"GIT_AUTHOR_NAME=ocmt", "GIT_AUTHOR_EMAIL=ocmt@localhost",
	"GIT_COMMITTER_NAME=ocmt", "GIT_COMMITTER_EMAIL=ocmt@localhost",
}

// Snapshot is a saved index and work tree.
type Snapshot struct {
	Head   string   // HEAD at snapshot time; empty on an unborn branch
	Index  string   // commit of the index tree, parent Head
	Commit string   // commit of the work tree, parents Head and Index
	Staged []string // paths staged at snapshot time
}

// Snapshot records the current index and work tree, untracked files
// included. Neither the index nor the work tree is modified.
func (r *Repo) Snapshot(ctx context.Context) (*Snapshot, error) {
	head, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		head = ""
	}
	staged, err := r.StagedFiles(ctx)
	if err != nil {
		return nil, err
	}

	indexTree, err := r.run(ctx, "write-tree")
	if err != nil {
		return nil, fmt.Errorf("snapshot index: %w", err)
	}
	var parents []string
	if head != "" {
		parents = append(parents, head)
	}
	indexCommit, err := r.commitTree(ctx, nil, indexTree, "ocmt snapshot: index", parents...)
	if err != nil {
		return nil, err
	}

	tmpIndex, cleanup, err := r.copyIndex(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	env := []string{"GIT_INDEX_FILE=" + tmpIndex}
	if _, err := r.runEnv(ctx, env, "add", "-A"); err != nil {
		return nil, fmt.Errorf("snapshot work tree: %w", err)
	}
	worktreeTree, err := r.runEnv(ctx, env, "write-tree")
	if err != nil {
		return nil, fmt.Errorf("snapshot work tree: %w", err)
	}
	worktreeCommit, err := r.commitTree(ctx, env, worktreeTree, "ocmt snapshot: work tree", append(parents, indexCommit)...)
	if err != nil {
		return nil, err
	}

	if _, err := r.run(ctx, "update-ref", SnapshotRef, worktreeCommit); err != nil {
		return nil, fmt.Errorf("snapshot ref: %w", err)
	}

	return &Snapshot{Head: head, Index: indexCommit, Commit: worktreeCommit, Staged: staged}, nil
}

func (r *Repo) commitTree(ctx context.Context, env []string, tree, message string, parents ...string) (string, error) {
	args := []string{"commit-tree", tree, "-m", message}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	commit, err := r.runEnv(ctx, append(env, snapshotIdentity...), args...)
	if err != nil {
		return "", fmt.Errorf("snapshot commit: %w", err)
	}
	return commit, nil
}

// copyIndex copies the real index to a temporary file so it can be modified
// freely. An unborn repository may have no index yet.
func (r *Repo) copyIndex(ctx context.Context) (string, func(), error) {
	indexPath, err := r.run(ctx, "rev-parse", "--git-path", "index")
	if err != nil {
		return "", nil, err
	}
	if !filepath.IsAbs(indexPath) {
		indexPath = filepath.Join(r.Dir, indexPath)
	}

	tmp, err := os.CreateTemp("", "ocmt-index-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temporary index: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	data, err := os.ReadFile(indexPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		data = nil
	case err != nil:
		_ = tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("reading index: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing temporary index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("writing temporary index: %w", err)
	}
	if len(data) == 0 {
		// git rejects an empty index file; let it create one.
		cleanup()
	}
	return tmpPath, cleanup, nil
}

// Restage stages the current content of files, recording edits made to the
// paths that were staged at snapshot time.
// Shells out to: git add -A -- <files>
func (r *Repo) Restage(ctx context.Context, files []string) error {
	if len(files) == 0 {
		return nil
	}
	_, err := r.run(ctx, append([]string{"add", "-A", "--"}, files...)...)
	return err
}

// DiffAgainst returns the diff from the snapshot to the current work tree.
func (r *Repo) DiffAgainst(ctx context.Context, snap *Snapshot) (string, error) {
	return r.output(ctx, nil, "diff", "--no-color", "--no-ext-diff", snap.Commit)
}

// DiffTool opens the changes since the snapshot in an external diff viewer
// attached to the terminal. An empty tool uses git's configured difftool.
// Shells out to: git difftool -y [--tool=<tool>] <snapshot>
func (r *Repo) DiffTool(ctx context.Context, snap *Snapshot, tool string) error {
	if err := ensureGit(); err != nil {
		return err
	}
	args := []string{"difftool", "-y"}
	if tool != "" {
		args = append(args, "--tool="+tool)
	}
	args = append(args, snap.Commit)

	cmd := r.command(ctx, nil, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git difftool: %w", err)
	}
	return nil
}

// Restore puts the work tree and then the index back to the snapshot.
// Shells out to: git read-tree --reset -u <snapshot> && git read-tree <index>
func (r *Repo) Restore(ctx context.Context, snap *Snapshot) error {
	if _, err := r.run(ctx, "read-tree", "--reset", "-u", snap.Commit); err != nil {
		return fmt.Errorf("%w: work tree: %w", ErrRestoreIncomplete, err)
	}
	if _, err := r.run(ctx, "read-tree", snap.Index); err != nil {
		return fmt.Errorf("%w: index: %w", ErrRestoreIncomplete, err)
	}
	return nil
}

// Release drops the ref that keeps the snapshot reachable.
func (r *Repo) Release(ctx context.Context) error {
	_, err := r.run(ctx, "update-ref", "-d", SnapshotRef)
	return err
}
