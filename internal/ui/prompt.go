package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrNoAnswer is returned when input ends before a valid answer.
var ErrNoAnswer = errors.New("no answer: input closed")

// maxAttempts bounds how often an invalid answer is re-asked.
const maxAttempts = 3

// Option is one numbered choice. Key, when set, is accepted as a shortcut.
type Option struct {
	Key   string
	Label string
}

// Prompter asks questions on a terminal.
type Prompter struct {
	in  *Input
	out io.Writer
}

// NewPrompter creates a Prompter reading answers from in.
func NewPrompter(in *Input, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out}
}

// Choose renders question with numbered options and returns the index of the
// selected one. An empty answer selects the first option.
func (p *Prompter) Choose(ctx context.Context, question string, options []Option) (int, error) {
	p.in.Discard()
	for attempt := 0; attempt < maxAttempts; attempt++ {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, TitleStyle.Render(question))
		for i, opt := range options {
			suffix := ""
			if opt.Key != "" {
				suffix = DimStyle.Render(" (" + opt.Key + ")")
			}
			fmt.Fprintf(p.out, "  [%d] %s%s\n", i+1, opt.Label, suffix)
		}
		fmt.Fprint(p.out, "  > ")

		line, err := p.in.ReadLine(ctx)
		if err != nil {
			fmt.Fprintln(p.out)
			if errors.Is(err, io.EOF) {
				return 0, ErrNoAnswer
			}
			return 0, err
		}
		if idx, ok := matchOption(line, options); ok {
			return idx, nil
		}
		fmt.Fprintln(p.out, WarningStyle.Render("  Please enter a number between 1 and "+strconv.Itoa(len(options))+"."))
	}
	return 0, ErrNoAnswer
}

// matchOption resolves an answer by number or key.
func matchOption(answer string, options []Option) (int, bool) {
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "" && len(options) > 0 {
		return 0, true
	}
	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(options) {
			return n - 1, true
		}
		return 0, false
	}
	for i, opt := range options {
		if opt.Key != "" && strings.ToLower(opt.Key) == answer {
			return i, true
		}
	}
	return 0, false
}

// Confirm asks a yes/no question. An empty answer returns def.
func (p *Prompter) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	p.in.Discard()
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Fprintf(p.out, "%s %s ", question, DimStyle.Render(hint))

	line, err := p.in.ReadLine(ctx)
	if err != nil {
		fmt.Fprintln(p.out)
		if errors.Is(err, io.EOF) {
			return false, ErrNoAnswer
		}
		return false, err
	}
	switch strings.ToLower(line) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
