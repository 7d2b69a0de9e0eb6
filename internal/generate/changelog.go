package generate

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/iHildy/ocmt/internal/git"
)

// ErrNoCommits is returned when there is no history to summarize.
var ErrNoCommits = errors.New("no commits since the previous release")

// ChangelogInput is what a changelog section is generated from.
type ChangelogInput struct {
	Version     string
	Date        time.Time
	PreviousTag string // empty for the first release
	Commits     []git.Commit
}

// ChangelogEntry generates a release section.
func (g *Generator) ChangelogEntry(ctx context.Context, in ChangelogInput) (string, error) {
	if len(in.Commits) == 0 {
		return "", ErrNoCommits
	}
	if in.Date.IsZero() {
		in.Date = time.Now()
	}
	data := struct {
		Version     string
		Date        string
		PreviousTag string
		Commits     []git.Commit
	}{in.Version, in.Date.Format(time.DateOnly), in.PreviousTag, in.Commits}

	out, err := g.run(ctx, "changelog "+in.Version, "", changelogTmpl, data)
	if err != nil {
		return "", err
	}
	return ensureHeading(out, "## ["+in.Version+"] - "+data.Date), nil
}

// MergeChangelog combines an incoming section with an existing one for the
// same release.
func (g *Generator) MergeChangelog(ctx context.Context, existing, incoming string) (string, error) {
	data := struct{ Existing, Incoming string }{strings.TrimSpace(existing), strings.TrimSpace(incoming)}
	out, err := g.run(ctx, "changelog merge", "", changelogMergeTmpl, data)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

var sectionStart = regexp.MustCompile(`(?m)^## `)

// ensureHeading drops any chatter before the first "## " line and adds
// heading when the answer has none.
func ensureHeading(section, heading string) string {
	section = strings.TrimSpace(section)
	if loc := sectionStart.FindStringIndex(section); loc != nil {
		return strings.TrimSpace(section[loc[0]:])
	}
	return heading + "\n\n" + section
}
