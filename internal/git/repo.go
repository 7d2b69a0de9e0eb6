// Package git wraps the Git and GitHub CLI operations ocmt needs.
// This file defines Repo and the command runner every operation shares.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var (
	ErrGitNotFound = errors.New("git not found in PATH")
	ErrGHNotFound  = errors.New("gh CLI not found in PATH; install GitHub CLI first")
	ErrNoChanges   = errors.New("no changes to commit")
	ErrNotARepo    = errors.New("not a git repository")
	ErrNoTags      = errors.New("no tags found")
)

// ensureGit checks that git is available in PATH.
func ensureGit() error {
	_, err := exec.LookPath("git")
	if err != nil {
		return ErrGitNotFound
	}
	return nil
}

// Repo runs git in Dir (the process working directory when empty).
type Repo struct {
	Dir string
}

// Open returns the Repo containing dir.
func Open(ctx context.Context, dir string) (*Repo, error) {
	r := &Repo{Dir: dir}
	root, err := r.Root(ctx)
	if err != nil {
		return nil, err
	}
	return &Repo{Dir: root}, nil
}

// command builds a git command in the repository with extra environment.
func (r *Repo) command(ctx context.Context, env []string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	return cmd
}

// run executes git and returns trimmed stdout. Errors carry the command and
// its stderr.
func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	return r.runEnv(ctx, nil, args...)
}

func (r *Repo) runEnv(ctx context.Context, env []string, args ...string) (string, error) {
	out, err := r.output(ctx, env, args...)
	return strings.TrimSpace(out), err
}

// output executes git and returns raw stdout.
func (r *Repo) output(ctx context.Context, env []string, args ...string) (string, error) {
	if err := ensureGit(); err != nil {
		return "", err
	}
	var stdout, stderr bytes.Buffer
	cmd := r.command(ctx, env, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}

// IsRepo reports whether Dir is inside a git work tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	out, err := r.run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// Root returns the top-level directory of the work tree.
// Shells out to: git rev-parse --show-toplevel
func (r *Repo) Root(ctx context.Context) (string, error) {
	if err := ensureGit(); err != nil {
		return "", err
	}
	out, err := r.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotARepo, err)
	}
	return out, nil
}

// lines splits command output into non-empty lines.
func lines(out string) []string {
	var result []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			result = append(result, l)
		}
	}
	return result
}
