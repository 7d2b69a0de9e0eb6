// branch.go implements "ocmt branch": name a branch for a description and/or
// the staged changes, then create and switch to it.
package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iHildy/ocmt/internal/generate"
	"github.com/iHildy/ocmt/internal/log"
	"github.com/iHildy/ocmt/internal/ui"
)

var branchCmd = &cobra.Command{
	Use:   "branch [description]",
	Short: "Generate a branch name and switch to it",
	Long: `Generate a git branch name from a short description, the staged changes,
or both, then create the branch and check it out.`,
	RunE: runBranch,
}

var branchOpts struct {
	print bool
}

func init() {
	branchCmd.Flags().BoolVar(&branchOpts.print, "print", false, "Print the name instead of creating the branch")
}

func runBranch(cmd *cobra.Command, args []string) error {
	a, ctx, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	description := strings.TrimSpace(strings.Join(args, " "))
	diff, err := a.repo.StagedDiff(ctx)
	if err != nil {
		return err
	}
	if description == "" && strings.TrimSpace(diff) == "" {
		return fmt.Errorf("describe the work or stage some changes first")
	}

	in := generate.BranchInput{Description: description, Diff: diff, Prefix: a.cfg.Branch.Prefix}
	var name string
	generateName := func() error {
		return a.generating("Naming branch", func() error {
			var genErr error
			name, genErr = a.gen.BranchName(ctx, in)
			return genErr
		})
	}
	if err := generateName(); err != nil {
		return err
	}

	for {
		name = uniqueBranch(ctx, a, name)
		if !a.repo.ValidBranchName(ctx, name) {
			return fmt.Errorf("%w: %q", generate.ErrInvalidBranchName, name)
		}
		if branchOpts.print {
			fmt.Fprintln(a.out, name)
			return nil
		}
		ui.Box(a.errOut, "Branch", name)

		if a.autoAccept() {
			return createBranch(ctx, a, name)
		}
		if !a.interactive {
			fmt.Fprintln(a.out, name)
			ui.Warn(a.errOut, "not a terminal; pass --yes to create the branch")
			return nil
		}

		choice, err := a.prompt.Choose(ctx, "Create this branch?", []ui.Option{
			{Key: "c", Label: "Create and switch"},
			{Key: "r", Label: "Regenerate"},
			{Key: "q", Label: "Cancel"},
		})
		if err != nil {
			return err
		}
		switch choice {
		case 0:
			return createBranch(ctx, a, name)
		case 1:
			if err := generateName(); err != nil {
				return err
			}
		default:
			printCancelled()
			return nil
		}
	}
}

// uniqueBranch appends -2, -3, ... until name is unused.
func uniqueBranch(ctx context.Context, a *app, name string) string {
	candidate := name
	for i := 2; a.repo.BranchExists(ctx, candidate); i++ {
		candidate = name + "-" + strconv.Itoa(i)
	}
	return candidate
}

func createBranch(ctx context.Context, a *app, name string) error {
	if err := a.repo.CreateBranch(ctx, name); err != nil {
		return err
	}
	a.logger.Info("branch created", log.Event(log.EventBranchCreated), zap.String("branch", name))
	ui.Success(a.errOut, "Switched to new branch %s", name)
	return nil
}
