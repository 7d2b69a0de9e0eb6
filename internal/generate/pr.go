package generate

import (
	"context"
	"regexp"
	"strings"

	"github.com/iHildy/ocmt/internal/git"
	"github.com/iHildy/ocmt/internal/opencode"
)

// PRInput is what pull request content is generated from.
type PRInput struct {
	Branch   string
	Base     string
	Commits  []git.Commit
	DiffStat string
	Diff     string
}

// PRContent is a generated pull request title and description.
type PRContent struct {
	Title string
	Body  string
}

// PullRequest generates a title and description for merging Branch into Base.
func (g *Generator) PullRequest(ctx context.Context, in PRInput) (PRContent, error) {
	if len(in.Commits) == 0 {
		return PRContent{}, ErrNoCommits
	}
	data := struct {
		Branch, Base, DiffStat string
		Commits                []git.Commit
	}{in.Branch, in.Base, strings.TrimSpace(in.DiffStat), in.Commits}

	out, err := g.run(ctx, "pull request", "", prTmpl, data,
		opencode.Attachment{Name: "branch.diff", Content: in.Diff})
	if err != nil {
		return PRContent{}, err
	}
	pr := ParsePR(out)
	if pr.Title == "" {
		pr.Title = in.Commits[0].Subject
	}
	return pr, nil
}

var titleLine = regexp.MustCompile(`(?im)^\s*(?:\*\*)?title(?:\*\*)?\s*:\s*(.+)$`)

// ParsePR splits a "TITLE: ..." answer into title and body. Without a label
// the first line is the title.
func ParsePR(s string) PRContent {
	s = strings.TrimSpace(s)
	if m := titleLine.FindStringSubmatchIndex(s); m != nil {
		title := strings.TrimSpace(s[m[2]:m[3]])
		body := strings.TrimSpace(s[:m[0]] + s[m[1]:])
		return PRContent{Title: cleanTitle(title), Body: body}
	}
	title, body, _ := strings.Cut(s, "\n")
	return PRContent{Title: cleanTitle(title), Body: strings.TrimSpace(body)}
}

func cleanTitle(s string) string {
	return strings.Trim(strings.TrimLeft(s, "# "), "`\"* ")
}
