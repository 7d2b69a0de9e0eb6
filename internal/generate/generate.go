// Package generate builds prompts for each artifact ocmt produces and turns
// the backend's answers into usable text.
package generate

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/iHildy/ocmt/internal/opencode"
	"github.com/iHildy/ocmt/prompts"
	"go.uber.org/zap"
)

// Runner executes one prompt. *opencode.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, req opencode.Request) (string, error)
}

// DefaultMaxInline is the largest diff embedded in a prompt; larger diffs are
// attached as files.
const DefaultMaxInline = 32 * 1024

var (
	commitTmpl         = template.Must(template.New("commit").Parse(prompts.CommitTemplate))
	branchTmpl         = template.Must(template.New("branch").Parse(prompts.BranchTemplate))
	changelogTmpl      = template.Must(template.New("changelog").Parse(prompts.ChangelogTemplate))
	changelogMergeTmpl = template.Must(template.New("changelog_merge").Parse(prompts.ChangelogMergeTemplate))
	prTmpl             = template.Must(template.New("pr").Parse(prompts.PRTemplate))
	deslopTmpl         = template.Must(template.New("deslop").Parse(prompts.DeslopTemplate))
)

// Generator produces artifacts through a Runner.
type Generator struct {
	runner    Runner
	model     string
	agent     string
	dir       string
	maxInline int
	logger    *zap.Logger
}

// Options configures a Generator.
type Options struct {
	Model     string // provider/model
	Agent     string
	Dir       string // repository root; scopes the backend session
	MaxInline int    // DefaultMaxInline when zero
	Logger    *zap.Logger
}

// New creates a Generator.
func New(runner Runner, opts Options) *Generator {
	if opts.MaxInline <= 0 {
		opts.MaxInline = DefaultMaxInline
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Generator{
		runner:    runner,
		model:     opts.Model,
		agent:     opts.Agent,
		dir:       opts.Dir,
		maxInline: opts.MaxInline,
		logger:    opts.Logger,
	}
}

// Model returns the configured model.
func (g *Generator) Model() string {
	return g.model
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// run renders t and sends it with the given attachments.
func (g *Generator) run(ctx context.Context, title, model string, t *template.Template, data any, attachments ...opencode.Attachment) (string, error) {
	prompt, err := render(t, data)
	if err != nil {
		return "", err
	}
	if model == "" {
		model = g.model
	}
	g.logger.Debug("generating", zap.String("artifact", t.Name()), zap.Int("prompt_bytes", len(prompt)), zap.Int("attachments", len(attachments)))
	return g.runner.Run(ctx, opencode.Request{
		Title:       title,
		Prompt:      prompt,
		Model:       model,
		Agent:       g.agent,
		Directory:   g.dir,
		Attachments: attachments,
	})
}

// inlineOrAttach returns diff for inlining when it is small enough, otherwise
// an attachment carrying it.
func (g *Generator) inlineOrAttach(name, diff string) (string, []opencode.Attachment) {
	if len(diff) <= g.maxInline {
		return diff, nil
	}
	return "", []opencode.Attachment{{Name: name, Content: diff}}
}
