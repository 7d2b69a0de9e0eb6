// Package ui provides the terminal pieces of ocmt: the progress spinner,
// numbered choice prompts, styles and clipboard access.
package ui

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal. Anything without a
// file descriptor is not.
func IsTerminal(f any) bool {
	fd, ok := f.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(fd.Fd()))
}

// IsInteractive reports whether both stdin and stdout are terminals.
func IsInteractive() bool {
	return IsTerminal(os.Stdin) && IsTerminal(os.Stdout)
}

// Input hands out lines read from r to successive prompts. A blocked terminal
// read cannot be interrupted, so a single goroutine reads r for the process
// lifetime and every prompt shares it.
type Input struct {
	r     io.Reader
	once  sync.Once
	lines chan inputLine
	epoch atomic.Uint64
}

// inputLine is a line tagged with the epoch in which it was read.
type inputLine struct {
	text  string
	epoch uint64
}

// NewInput creates an Input over r.
func NewInput(r io.Reader) *Input {
	return &Input{r: r}
}

func (in *Input) start() <-chan inputLine {
	in.once.Do(func() {
		in.lines = make(chan inputLine)
		go func() {
			defer close(in.lines)
			reader := bufio.NewReader(in.r)
			for {
				line, err := reader.ReadString('\n')
				if line != "" || err == nil {
					in.lines <- inputLine{text: strings.TrimSpace(line), epoch: in.epoch.Load()}
				}
				if err != nil {
					return
				}
			}
		}()
	})
	return in.lines
}

// Discard drops every line read before the call. A prompt calls it before
// showing itself so that an answer typed for an earlier, expired prompt is
// not taken as the answer to this one.
func (in *Input) Discard() {
	in.epoch.Add(1)
}

// ReadLine returns the next trimmed line read since the last Discard. It
// returns io.EOF once r is exhausted and ctx.Err() when ctx ends first.
func (in *Input) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lines := in.start()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return "", io.EOF
			}
			if line.epoch < in.epoch.Load() {
				continue
			}
			return line.text, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
