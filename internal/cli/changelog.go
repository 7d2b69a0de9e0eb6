// changelog.go implements "ocmt changelog": summarize the commits since the
// last tag into a release section of CHANGELOG.md.
package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iHildy/ocmt/internal/changelog"
	"github.com/iHildy/ocmt/internal/generate"
	"github.com/iHildy/ocmt/internal/git"
	"github.com/iHildy/ocmt/internal/log"
	"github.com/iHildy/ocmt/internal/ui"
)

var changelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Write a changelog section for the next release",
	Long: `Summarize the commits since the latest tag into a Keep a Changelog section
and insert it at the top of the changelog file. The version is derived from
the commits (feat -> minor, breaking -> major, otherwise patch) unless given.

When the newest section already covers the same version, the two are merged.`,
	Args: cobra.NoArgs,
	RunE: runChangelog,
}

var changelogOpts struct {
	version string
	from    string
	file    string
	print   bool
}

func init() {
	changelogCmd.Flags().StringVar(&changelogOpts.version, "version", "", "Release version (default: next semver from commits)")
	changelogCmd.Flags().StringVar(&changelogOpts.from, "from", "", "Start of the commit range (default: latest tag)")
	changelogCmd.Flags().StringVar(&changelogOpts.file, "file", "", "Changelog file (default: changelog.file from config)")
	changelogCmd.Flags().BoolVar(&changelogOpts.print, "print", false, "Print the section instead of writing the file")
}

// releaseContext is what the changelog command reads before generating.
type releaseContext struct {
	from     string
	commits  []git.Commit
	existing string
}

func runChangelog(cmd *cobra.Command, args []string) error {
	a, ctx, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	path := changelogOpts.file
	if path == "" {
		path = a.cfg.Changelog.File
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.repo.Dir, path)
	}

	rc, err := loadRelease(ctx, a.repo, changelogOpts.from, path)
	if err != nil {
		return err
	}
	if len(rc.commits) == 0 {
		return generate.ErrNoCommits
	}

	version := changelogOpts.version
	if version == "" {
		version, err = git.VersionBump(rc.from, git.BumpFor(rc.commits))
		if err != nil {
			return fmt.Errorf("deriving version from %s: %w (pass --version)", rc.from, err)
		}
	}

	var entry string
	err = a.generating("Writing changelog for "+version, func() error {
		var genErr error
		entry, genErr = a.gen.ChangelogEntry(ctx, generate.ChangelogInput{
			Version:     version,
			Date:        time.Now(),
			PreviousTag: rc.from,
			Commits:     rc.commits,
		})
		return genErr
	})
	if err != nil {
		return err
	}

	updated := changelog.Insert(rc.existing, entry)
	if latest := changelog.LatestSection(rc.existing); changelog.HasVersion(latest, version) {
		err = a.generating("Merging with the existing "+version+" section", func() error {
			merged, genErr := a.gen.MergeChangelog(ctx, latest, entry)
			entry = merged
			return genErr
		})
		if err != nil {
			return err
		}
		updated = changelog.ReplaceLatest(rc.existing, entry)
	}

	if changelogOpts.print {
		fmt.Fprintln(a.out, entry)
		return nil
	}
	ui.Box(a.errOut, "Changelog "+version, entry)

	if !a.autoAccept() {
		if !a.interactive {
			fmt.Fprintln(a.out, entry)
			ui.Warn(a.errOut, "not a terminal; pass --yes to write %s", filepath.Base(path))
			return nil
		}
		ok, err := a.prompt.Confirm(ctx, "Write to "+filepath.Base(path)+"?", true)
		if err != nil {
			return err
		}
		if !ok {
			printCancelled()
			return nil
		}
	}

	if err := changelog.Write(path, updated); err != nil {
		return err
	}
	a.logger.Info("changelog saved", log.Event(log.EventChangelogSaved),
		zap.String("file", path), zap.String("version", version), zap.Int("commits", len(rc.commits)))
	ui.Success(a.errOut, "Updated %s with %s", filepath.Base(path), version)
	return nil
}

// loadRelease reads the commit range and the current changelog concurrently.
func loadRelease(ctx context.Context, repo *git.Repo, from, path string) (*releaseContext, error) {
	rc := &releaseContext{from: from}
	if rc.from == "" {
		tag, err := repo.LatestTag(ctx)
		if err != nil && !errors.Is(err, git.ErrNoTags) {
			return nil, err
		}
		rc.from = tag
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rc.commits, err = repo.CommitsBetween(gctx, rc.from, "HEAD")
		return err
	})
	g.Go(func() error {
		var err error
		rc.existing, err = changelog.Read(path)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rc, nil
}
