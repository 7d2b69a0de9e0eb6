// commit.go reads staged state and creates commits.
package git

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

// FileStatus is one entry of `git status --porcelain`.
type FileStatus struct {
	Index    byte // staged state, ' ' when unchanged
	Worktree byte // unstaged state, ' ' when unchanged
	Path     string
}

// Staged reports whether the entry has staged changes.
func (f FileStatus) Staged() bool {
	return f.Index != ' ' && f.Index != '?'
}

// Status returns the porcelain status of the work tree.
// Shells out to: git status --porcelain
func (r *Repo) Status(ctx context.Context) ([]FileStatus, error) {
	out, err := r.output(ctx, nil, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	var entries []FileStatus
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if _, to, ok := strings.Cut(path, " -> "); ok {
			path = to
		}
		entries = append(entries, FileStatus{Index: line[0], Worktree: line[1], Path: path})
	}
	return entries, nil
}

// HasChanges returns true if the working tree has uncommitted changes.
func (r *Repo) HasChanges(ctx context.Context) (bool, error) {
	entries, err := r.Status(ctx)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// StagedDiff returns the diff of the index against HEAD.
// Shells out to: git diff --cached
func (r *Repo) StagedDiff(ctx context.Context) (string, error) {
	return r.output(ctx, nil, "diff", "--cached", "--no-color", "--no-ext-diff")
}

// StagedFiles lists the paths with staged changes.
// Shells out to: git diff --cached --name-only
func (r *Repo) StagedFiles(ctx context.Context) ([]string, error) {
	out, err := r.output(ctx, nil, "diff", "--cached", "--name-only", "--no-renames")
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

// StageAll stages every change in the work tree.
// Shells out to: git add -A
func (r *Repo) StageAll(ctx context.Context) error {
	_, err := r.run(ctx, "add", "-A")
	return err
}

// Commit commits the index with message. Returns ErrNoChanges when nothing is
// staged.
// Shells out to: git commit -F -
func (r *Repo) Commit(ctx context.Context, message string) error {
	files, err := r.StagedFiles(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrNoChanges
	}

	cmd := r.command(ctx, nil, "commit", "-F", "-")
	cmd.Stdin = strings.NewReader(message)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git commit: %s: %w", strings.TrimSpace(out.String()), err)
	}
	return nil
}

// HeadSubject returns the subject line of the last commit.
func (r *Repo) HeadSubject(ctx context.Context) (string, error) {
	return r.run(ctx, "log", "-1", "--format=%s")
}
