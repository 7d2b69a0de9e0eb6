package generate

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidBranchName is returned when no usable name could be derived.
var ErrInvalidBranchName = errors.New("backend did not suggest a usable branch name")

const maxBranchLen = 50

// BranchInput is what a branch name is generated from.
type BranchInput struct {
	Description string
	Diff        string
	Prefix      string
}

// BranchName generates a branch name for a description and/or staged diff.
func (g *Generator) BranchName(ctx context.Context, in BranchInput) (string, error) {
	diff, attachments := g.inlineOrAttach("changes.diff", in.Diff)
	data := struct {
		BranchInput
		Diff string
	}{in, diff}

	out, err := g.run(ctx, "branch name", "", branchTmpl, data, attachments...)
	if err != nil {
		return "", err
	}
	name := SlugBranch(out)
	if name == "" {
		return "", ErrInvalidBranchName
	}
	if in.Prefix != "" && !strings.HasPrefix(name, in.Prefix) {
		name = in.Prefix + name
	}
	return name, nil
}

var (
	branchLabel   = regexp.MustCompile(`(?i)^branch(\s+name)?\s*:\s*`)
	branchUnsafe  = regexp.MustCompile(`[^a-z0-9/._-]+`)
	branchDots    = regexp.MustCompile(`\.{2,}`)
	branchDashes  = regexp.MustCompile(`-{2,}`)
	branchSlashes = regexp.MustCompile(`/{2,}`)
)

// SlugBranch reduces a model answer to a git-safe branch name: the first
// non-empty line, lowercased, with unsafe runs replaced by "-".
func SlugBranch(s string) string {
	var line string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = branchLabel.ReplaceAllString(line, "")
	line = strings.Trim(line, "`'\" ")

	name := strings.ToLower(strings.TrimSpace(line))
	name = branchDots.ReplaceAllString(name, ".")
	name = branchUnsafe.ReplaceAllString(name, "-")
	name = branchDashes.ReplaceAllString(name, "-")
	name = branchSlashes.ReplaceAllString(name, "/")
	name = strings.Trim(name, "-/.")
	if len(name) > maxBranchLen {
		name = strings.TrimRight(name[:maxBranchLen], "-/.")
	}
	name = strings.TrimSuffix(name, ".lock")
	return name
}
