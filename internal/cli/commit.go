// commit.go implements the default command: generate a commit message for the
// staged changes, review it and commit.
package cli

import (
	"context"
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

const recentSubjectCount = 10

var commitOpts struct {
	all   bool
	print bool
	copy  bool
}

func registerCommitFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&commitOpts.all, "all", "a", false, "Stage all changes before generating")
	cmd.Flags().BoolVar(&commitOpts.print, "print", false, "Print the message instead of committing")
	cmd.Flags().BoolVar(&commitOpts.copy, "copy", false, "Copy the message to the clipboard")
}

func runCommit(cmd *cobra.Command, args []string) error {
	a, ctx, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	if commitOpts.all {
		if err := a.repo.StageAll(ctx); err != nil {
			return err
		}
	}

	in, err := commitContext(ctx, a.repo)
	if err != nil {
		return err
	}
	in.Conventional = a.cfg.Commit.Conventional
	in.Instructions = a.cfg.Commit.Instructions

	if strings.TrimSpace(in.Diff) == "" {
		if dirty, _ := a.repo.HasChanges(ctx); dirty {
			return fmt.Errorf("%w (or pass --all)", generate.ErrNoStagedChanges)
		}
		return fmt.Errorf("nothing to commit, working tree clean")
	}

	var msg string
	generateMsg := func() error {
		return a.generating("Writing commit message", func() error {
			var genErr error
			msg, genErr = a.gen.CommitMessage(ctx, in)
			return genErr
		})
	}
	if err := generateMsg(); err != nil {
		return err
	}

	for {
		ui.Box(a.errOut, "Commit message", msg)

		if commitOpts.copy {
			if err := ui.Copy(msg); err != nil {
				ui.Warn(a.errOut, "%v", err)
			} else {
				ui.Success(a.errOut, "Copied to clipboard")
			}
		}
		if commitOpts.print {
			fmt.Fprintln(a.out, msg)
			return nil
		}
		if a.autoAccept() {
			return commitWith(ctx, a, msg)
		}
		if !a.interactive {
			fmt.Fprintln(a.out, msg)
			ui.Warn(a.errOut, "not a terminal; pass --yes to commit")
			return nil
		}

		choice, err := a.prompt.Choose(ctx, "Commit with this message?", []ui.Option{
			{Key: "c", Label: "Commit"},
			{Key: "e", Label: "Edit"},
			{Key: "r", Label: "Regenerate"},
			{Key: "y", Label: "Copy to clipboard"},
			{Key: "q", Label: "Cancel"},
		})
		if err != nil {
			return err
		}
		switch choice {
		case 0:
			return commitWith(ctx, a, msg)
		case 1:
			edited, err := ui.EditText(ctx, ui.Editor(), msg)
			if err != nil {
				return err
			}
			if edited == "" {
				printCancelled()
				return nil
			}
			msg = generate.NormalizeCommitMessage(edited)
		case 2:
			if err := generateMsg(); err != nil {
				return err
			}
		case 3:
			if err := ui.Copy(msg); err != nil {
				ui.Warn(a.errOut, "%v", err)
			} else {
				ui.Success(a.errOut, "Copied to clipboard")
			}
		default:
			printCancelled()
			return nil
		}
	}
}

// commitContext gathers the staged diff and the context around it.
func commitContext(ctx context.Context, repo *git.Repo) (generate.CommitInput, error) {
	var in generate.CommitInput
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Diff, err = repo.StagedDiff(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		in.Files, err = repo.StagedFiles(gctx)
		return err
	})
	g.Go(func() error {
		// Detached HEAD has no branch worth mentioning.
		in.Branch, _ = repo.CurrentBranch(gctx)
		return nil
	})
	g.Go(func() error {
		var err error
		in.RecentSubjects, err = repo.RecentSubjects(gctx, recentSubjectCount)
		return err
	})
	if err := g.Wait(); err != nil {
		return generate.CommitInput{}, err
	}
	return in, nil
}

func commitWith(ctx context.Context, a *app, msg string) error {
	if err := a.repo.Commit(ctx, msg); err != nil {
		return err
	}
	subject, _ := a.repo.HeadSubject(ctx)
	a.logger.Info("committed", log.Event(log.EventCommitted), zap.String("subject", subject))
	ui.Success(a.errOut, "Committed: %s", subject)
	return nil
}
