// branch.go handles reading, creating and pushing branches.
package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDetachedHead is returned by CurrentBranch when HEAD is not on a branch.
var ErrDetachedHead = errors.New("HEAD is detached; check out a branch first")

// CurrentBranch returns the name of the current git branch, including an
// unborn one in a fresh repository.
// Shells out to: git branch --show-current
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	name, err := r.run(ctx, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", ErrDetachedHead
	}
	return name, nil
}

// BranchExists checks whether a local branch with the given name exists.
// Shells out to: git rev-parse --verify --quiet refs/heads/<name>
func (r *Repo) BranchExists(ctx context.Context, name string) bool {
	_, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// ValidBranchName reports whether git accepts name as a branch name.
// Shells out to: git check-ref-format --branch <name>
func (r *Repo) ValidBranchName(ctx context.Context, name string) bool {
	_, err := r.run(ctx, "check-ref-format", "--branch", name)
	return err == nil
}

// CreateBranch creates a new git branch and switches to it. Uncommitted
// changes carry over.
// Shells out to: git checkout -b <name>
func (r *Repo) CreateBranch(ctx context.Context, name string) error {
	if r.BranchExists(ctx, name) {
		return fmt.Errorf("branch %s already exists", name)
	}
	_, err := r.run(ctx, "checkout", "-b", name)
	return err
}

// HasUpstream reports whether the current branch tracks a remote branch.
func (r *Repo) HasUpstream(ctx context.Context) bool {
	_, err := r.run(ctx, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}")
	return err == nil
}

// Push pushes the current branch, setting its upstream on first push.
// Shells out to: git push [-u origin <branch>]
func (r *Repo) Push(ctx context.Context) error {
	if r.HasUpstream(ctx) {
		_, err := r.run(ctx, "push")
		return err
	}
	branch, err := r.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	_, err = r.run(ctx, "push", "-u", "origin", branch)
	return err
}

// DefaultBranch returns the remote's default branch (origin/HEAD), falling
// back to main or master when it is not recorded.
func (r *Repo) DefaultBranch(ctx context.Context) string {
	if ref, err := r.run(ctx, "symbolic-ref", "--short", "refs/remotes/origin/HEAD"); err == nil {
		if name, ok := strings.CutPrefix(ref, "origin/"); ok && name != "" {
			return name
		}
	}
	for _, name := range []string{"main", "master"} {
		if r.BranchExists(ctx, name) {
			return name
		}
	}
	return "main"
}
