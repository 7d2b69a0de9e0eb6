package generate

import (
	"context"
	"regexp"
	"strings"

	"github.com/iHildy/ocmt/internal/opencode"
)

// DeslopInput describes the staged changes to clean up.
type DeslopInput struct {
	Files        []string
	Diff         string
	Instructions string
	Model        string // empty uses the generator's model
}

// Deslop asks the backend to edit the staged files in place and returns its
// one-line summary. The edits arrive through permission requests.
func (g *Generator) Deslop(ctx context.Context, in DeslopInput) (string, error) {
	if strings.TrimSpace(in.Diff) == "" {
		return "", ErrNoStagedChanges
	}
	data := struct {
		Files        []string
		Instructions string
	}{in.Files, in.Instructions}

	out, err := g.run(ctx, "deslop", in.Model, deslopTmpl, data,
		opencode.Attachment{Name: "staged.diff", Content: in.Diff})
	if err != nil {
		return "", err
	}
	return ParseSummary(out), nil
}

var summaryLine = regexp.MustCompile(`(?im)^\s*summary\s*:\s*(.+)$`)

// ParseSummary returns the text after the last "SUMMARY:" label, or the last
// non-empty line when there is none.
func ParseSummary(s string) string {
	if all := summaryLine.FindAllStringSubmatch(s, -1); len(all) > 0 {
		return strings.TrimSpace(all[len(all)-1][1])
	}
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
