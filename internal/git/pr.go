// pr.go creates pull requests via the gh CLI.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ensureGH checks that the GitHub CLI (gh) is available in PATH.
func ensureGH() error {
	_, err := exec.LookPath("gh")
	if err != nil {
		return ErrGHNotFound
	}
	return nil
}

// PullRequest is what CreatePR submits.
type PullRequest struct {
	Title string
	Body  string
	Base  string // empty lets gh pick the default branch
	Draft bool
}

// CreatePR creates a GitHub pull request for the current branch using the gh
// CLI and returns its URL.
func (r *Repo) CreatePR(ctx context.Context, pr PullRequest) (string, error) {
	if err := ensureGH(); err != nil {
		return "", err
	}

	args := []string{"pr", "create", "--title", pr.Title, "--body-file", "-"}
	if pr.Base != "" {
		args = append(args, "--base", pr.Base)
	}
	if pr.Draft {
		args = append(args, "--draft")
	}
	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Dir = r.Dir
	cmd.Stdin = strings.NewReader(pr.Body)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("gh pr create: %s: %w", strings.TrimSpace(string(out)), err)
	}

	// gh prints progress lines before the URL.
	result := lines(string(out))
	if len(result) == 0 {
		return "", nil
	}
	return result[len(result)-1], nil
}

// PRExists checks if there is already a PR for the current branch.
func (r *Repo) PRExists(ctx context.Context) (bool, error) {
	if err := ensureGH(); err != nil {
		return false, err
	}

	cmd := exec.CommandContext(ctx, "gh", "pr", "view", "--json", "state")
	cmd.Dir = r.Dir
	if err := cmd.Run(); err != nil {
		// gh returns an error when no PR exists for the current branch.
		return false, nil
	}
	return true, nil
}
