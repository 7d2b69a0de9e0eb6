package generate

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrNoStagedChanges is returned when there is nothing to describe.
var ErrNoStagedChanges = errors.New("no staged changes; stage files with git add first")

// CommitInput is what a commit message is generated from.
type CommitInput struct {
	Diff           string
	Files          []string
	Branch         string
	RecentSubjects []string
	Conventional   bool
	Instructions   string
}

// CommitMessage generates a commit message for the staged diff.
func (g *Generator) CommitMessage(ctx context.Context, in CommitInput) (string, error) {
	if strings.TrimSpace(in.Diff) == "" {
		return "", ErrNoStagedChanges
	}
	diff, attachments := g.inlineOrAttach("staged.diff", in.Diff)
	data := struct {
		CommitInput
		Diff string
	}{in, diff}

	out, err := g.run(ctx, "commit message", "", commitTmpl, data, attachments...)
	if err != nil {
		return "", err
	}
	return NormalizeCommitMessage(out), nil
}

var (
	messageLabel = regexp.MustCompile(`(?i)^\s*(commit message|message)\s*:\s*`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

// NormalizeCommitMessage trims wrapping quotes, labels and trailing whitespace
// and keeps exactly one blank line between subject and body.
func NormalizeCommitMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	msg = messageLabel.ReplaceAllString(msg, "")
	if len(msg) >= 2 && (msg[0] == '"' && msg[len(msg)-1] == '"' || msg[0] == '\'' && msg[len(msg)-1] == '\'') {
		msg = strings.TrimSpace(msg[1 : len(msg)-1])
	}

	lines := strings.Split(msg, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	subject := strings.TrimSpace(lines[0])
	body := strings.TrimSpace(strings.Join(lines[1:], "\n"))
	if body == "" {
		return subject
	}
	return subject + "\n\n" + blankRuns.ReplaceAllString(body, "\n\n")
}
