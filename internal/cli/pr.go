// pr.go implements "ocmt pr": generate a title and description for the
// current branch, push it and open a GitHub pull request via the gh CLI.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iHildy/ocmt/internal/generate"
	"github.com/iHildy/ocmt/internal/git"
	"github.com/iHildy/ocmt/internal/log"
	"github.com/iHildy/ocmt/internal/ui"
)

var prCmd = &cobra.Command{
	Use:   "pr",
	Short: "Open a pull request with a generated title and description",
	Long: `Generate a pull request title and description from the commits and diff
of the current branch against its base, push the branch and create the PR
with the GitHub CLI (gh).`,
	Args: cobra.NoArgs,
	RunE: runPR,
}

var prOpts struct {
	base  string
	draft bool
	title string
	print bool
	copy  bool
}

func init() {
	prCmd.Flags().StringVar(&prOpts.base, "base", "", "Base branch (default: pr.base from config, then the remote default)")
	prCmd.Flags().BoolVar(&prOpts.draft, "draft", false, "Create as draft PR")
	prCmd.Flags().StringVar(&prOpts.title, "title", "", "Override the generated title")
	prCmd.Flags().BoolVar(&prOpts.print, "print", false, "Print the title and description instead of creating the PR")
	prCmd.Flags().BoolVar(&prOpts.copy, "copy", false, "Copy the description to the clipboard")
}

func runPR(cmd *cobra.Command, args []string) error {
	a, ctx, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	branch, err := a.repo.CurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current branch: %w", err)
	}
	base := firstSet(prOpts.base, a.cfg.PR.Base)
	if base == "" {
		base = a.repo.DefaultBranch(ctx)
	}
	if branch == base {
		return fmt.Errorf("cannot create a PR from %s into itself; switch to a feature branch", base)
	}

	if !prOpts.print {
		exists, err := a.repo.PRExists(ctx)
		if err != nil {
			return handlePRError(err)
		}
		if exists {
			fmt.Fprintln(a.out, "A pull request already exists for this branch.")
			return nil
		}
	}

	in, err := prContext(ctx, a.repo, branch, base)
	if err != nil {
		return err
	}

	var pr generate.PRContent
	err = a.generating("Writing pull request", func() error {
		var genErr error
		pr, genErr = a.gen.PullRequest(ctx, in)
		return genErr
	})
	if err != nil {
		return err
	}
	if prOpts.title != "" {
		pr.Title = prOpts.title
	}

	if prOpts.copy {
		if err := ui.Copy(pr.Body); err != nil {
			ui.Warn(a.errOut, "%v", err)
		} else {
			ui.Success(a.errOut, "Copied description to clipboard")
		}
	}
	if prOpts.print {
		fmt.Fprintf(a.out, "%s\n\n%s\n", pr.Title, pr.Body)
		return nil
	}
	ui.Box(a.errOut, pr.Title, pr.Body)

	if !a.autoAccept() {
		if !a.interactive {
			fmt.Fprintf(a.out, "%s\n\n%s\n", pr.Title, pr.Body)
			ui.Warn(a.errOut, "not a terminal; pass --yes to create the PR")
			return nil
		}
		ok, err := a.prompt.Confirm(ctx, fmt.Sprintf("Push %s and open a PR into %s?", branch, base), true)
		if err != nil {
			return err
		}
		if !ok {
			printCancelled()
			return nil
		}
	}

	if err := a.repo.Push(ctx); err != nil {
		return fmt.Errorf("failed to push branch: %w", err)
	}
	url, err := a.repo.CreatePR(ctx, git.PullRequest{
		Title: pr.Title,
		Body:  pr.Body,
		Base:  base,
		Draft: prOpts.draft || a.cfg.PR.Draft,
	})
	if err != nil {
		return handlePRError(err)
	}
	a.logger.Info("pull request created", log.Event(log.EventPRCreated), zap.String("url", url), zap.String("base", base))
	ui.Success(a.errOut, "Opened pull request")
	fmt.Fprintln(a.out, url)
	return nil
}

// prContext reads the branch's commits, diff stat and diff concurrently.
func prContext(ctx context.Context, repo *git.Repo, branch, base string) (generate.PRInput, error) {
	in := generate.PRInput{Branch: branch, Base: base}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Commits, err = repo.CommitsBetween(gctx, base, "HEAD")
		return err
	})
	g.Go(func() error {
		var err error
		in.DiffStat, err = repo.DiffStat(gctx, base, "HEAD")
		return err
	})
	g.Go(func() error {
		var err error
		in.Diff, err = repo.DiffBetween(gctx, base, "HEAD")
		return err
	})
	if err := g.Wait(); err != nil {
		return generate.PRInput{}, err
	}
	if len(in.Commits) == 0 {
		return generate.PRInput{}, fmt.Errorf("no commits on %s that are not on %s", branch, base)
	}
	return in, nil
}

// handlePRError provides user-friendly messages for common PR creation failures.
func handlePRError(err error) error {
	if errors.Is(err, git.ErrGHNotFound) {
		return fmt.Errorf("GitHub CLI (gh) not found. Install it from: https://cli.github.com/")
	}
	msg := err.Error()
	if strings.Contains(msg, "not logged") || strings.Contains(msg, "auth login") {
		return fmt.Errorf("not authenticated with GitHub; run: gh auth login")
	}
	return fmt.Errorf("failed to create PR: %w", err)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
