// deslop.go implements "ocmt deslop": let the assistant clean AI slop out of
// the staged changes, review the edits and keep or revert them.
package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iHildy/ocmt/internal/generate"
	"github.com/iHildy/ocmt/internal/git"
	"github.com/iHildy/ocmt/internal/log"
	"github.com/iHildy/ocmt/internal/opencode"
	"github.com/iHildy/ocmt/internal/ui"
)

// restoreTimeout bounds reverting after the command context is cancelled.
const restoreTimeout = 30 * time.Second

var deslopCmd = &cobra.Command{
	Use:   "deslop",
	Short: "Remove AI slop from the staged changes",
	Long: `Snapshot the index and work tree, let the assistant edit the staged files
to remove AI slop (noise comments, needless defensive code, inconsistent
style), restage the edited files and review the result. Keeping leaves the
restaged edits in place; reverting restores the snapshot exactly.

With --yes, edits to staged files are allowed without asking and the result
is accepted.`,
	Args: cobra.NoArgs,
	RunE: runDeslop,
}

var deslopOpts struct {
	model        string
	instructions string
	difftool     bool
}

func init() {
	deslopCmd.Flags().StringVar(&deslopOpts.model, "deslop-model", "", "Model for the edit pass (default: deslop.model, then --model)")
	deslopCmd.Flags().StringVar(&deslopOpts.instructions, "instructions", "", "Extra instructions for the edit pass")
	deslopCmd.Flags().BoolVar(&deslopOpts.difftool, "difftool", false, "Open the edits in git difftool before deciding")
}

func runDeslop(cmd *cobra.Command, args []string) error {
	a, ctx, err := newApp(cmd, appOptions{negotiator: deslopNegotiator})
	if err != nil {
		return err
	}
	defer a.close()

	files, err := a.repo.StagedFiles(ctx)
	if err != nil {
		return err
	}
	diff, err := a.repo.StagedDiff(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 || strings.TrimSpace(diff) == "" {
		return generate.ErrNoStagedChanges
	}

	snap, err := a.repo.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshotting before deslop: %w", err)
	}
	guard := &snapshotGuard{a: a, snap: snap}
	defer guard.release()

	model := firstSet(deslopOpts.model, a.cfg.DeslopModel())
	var summary string
	err = a.generating("Cleaning up staged changes", func() error {
		var genErr error
		summary, genErr = a.gen.Deslop(ctx, generate.DeslopInput{
			Files:        files,
			Diff:         diff,
			Instructions: deslopOpts.instructions,
			Model:        model,
		})
		return genErr
	})
	if err != nil {
		return guard.fail(err)
	}

	edits, err := a.repo.DiffAgainst(ctx, snap)
	if err != nil {
		return guard.fail(err)
	}
	if strings.TrimSpace(edits) == "" {
		ui.Success(a.errOut, "Nothing to clean up: %s", summary)
		return nil
	}
	if err := a.repo.Restage(ctx, snap.Staged); err != nil {
		return guard.fail(fmt.Errorf("restaging edited files: %w", err))
	}

	ui.Box(a.errOut, "Deslop: "+summary, edits)
	if a.autoAccept() {
		return guard.keep()
	}
	if !a.interactive {
		ui.Warn(a.errOut, "not a terminal; reverting (pass --yes to keep the edits)")
		return guard.revert()
	}

	if deslopOpts.difftool {
		if err := a.repo.DiffTool(ctx, snap, a.cfg.Deslop.DiffTool); err != nil {
			ui.Warn(a.errOut, "%v", err)
		}
	}
	for {
		choice, err := a.prompt.Choose(ctx, "Keep these edits?", []ui.Option{
			{Key: "k", Label: "Keep"},
			{Key: "d", Label: "View in difftool"},
			{Key: "r", Label: "Revert"},
		})
		if err != nil {
			return guard.fail(err)
		}
		switch choice {
		case 0:
			return guard.keep()
		case 1:
			if err := a.repo.DiffTool(ctx, snap, a.cfg.Deslop.DiffTool); err != nil {
				ui.Warn(a.errOut, "%v", err)
			}
		default:
			return guard.revert()
		}
	}
}

// snapshotGuard owns the deslop snapshot ref. The ref is deleted on release
// unless a restore did not complete, so the user can still recover from it.
type snapshotGuard struct {
	a        *app
	snap     *git.Snapshot
	retained bool
}

// keep accepts the restaged edits.
func (g *snapshotGuard) keep() error {
	g.a.logger.Info("deslop applied", log.Event(log.EventDeslopApplied), zap.Strings("files", g.snap.Staged))
	ui.Success(g.a.errOut, "Kept edits and restaged %d file(s)", len(g.snap.Staged))
	return nil
}

// revert restores the snapshot even when the command context is already
// cancelled.
func (g *snapshotGuard) revert() error {
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()
	if err := g.a.repo.Restore(ctx, g.snap); err != nil {
		g.retained = true
		return fmt.Errorf("%w; snapshot kept at %s (%s)", err, git.SnapshotRef, g.snap.Commit)
	}
	g.a.logger.Info("deslop reverted", log.Event(log.EventDeslopReverted), zap.String("snapshot", g.snap.Commit))
	ui.Success(g.a.errOut, "Reverted to the snapshot")
	return nil
}

// fail reverts after err and reports both errors.
func (g *snapshotGuard) fail(err error) error {
	if restoreErr := g.revert(); restoreErr != nil {
		return errors.Join(err, restoreErr)
	}
	return err
}

func (g *snapshotGuard) release() {
	if g.retained {
		g.a.logger.Warn("keeping snapshot after incomplete restore",
			zap.String("ref", git.SnapshotRef), zap.String("snapshot", g.snap.Commit))
		return
	}
	if err := g.a.repo.Release(context.Background()); err != nil {
		g.a.logger.Debug("releasing snapshot", zap.Error(err))
	}
}

// deslopNegotiator asks on a terminal unless --yes is set, in which case
// edits of staged files are allowed and everything else is rejected.
func deslopNegotiator(a *app) opencode.Negotiator {
	if !a.autoAccept() && a.interactive {
		return a.terminalNegotiator()
	}
	n := &stagedEditNegotiator{root: a.repo.Dir, logger: a.logger, staged: make(map[string]bool)}
	if files, err := a.repo.StagedFiles(context.Background()); err == nil {
		for _, f := range files {
			n.staged[filepath.Clean(f)] = true
		}
	}
	return n
}

// stagedEditNegotiator allows edit requests for staged paths only.
type stagedEditNegotiator struct {
	root   string
	staged map[string]bool
	logger *zap.Logger
}

// Negotiate implements opencode.Negotiator.
func (n *stagedEditNegotiator) Negotiate(_ context.Context, p opencode.Permission) opencode.Decision {
	if p.Type != opencode.PermissionEdit {
		n.logger.Debug("rejecting non-edit permission", zap.String("type", p.Type))
		return opencode.DecisionReject
	}
	path := editPath(p)
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(n.root, path)
		if err != nil {
			return opencode.DecisionReject
		}
		path = rel
	}
	if !n.staged[filepath.Clean(path)] {
		n.logger.Debug("rejecting edit outside staged files", zap.String("path", path))
		return opencode.DecisionReject
	}
	return opencode.DecisionOnce
}

func editPath(p opencode.Permission) string {
	for _, key := range []string{"filePath", "filepath", "path"} {
		if v, ok := p.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	if len(p.Pattern) > 0 {
		return p.Pattern[0]
	}
	return ""
}
