package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

var spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(primaryColor))

// Spinner is a single-line progress indicator with elapsed time. On a
// non-terminal writer it prints the label once and stays quiet.
type Spinner struct {
	out    io.Writer
	tty    bool
	frames spinner.Spinner

	mu      sync.Mutex
	label   string
	started time.Time
	frame   int
	paused  bool
	drawn   bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner creates a spinner writing to out.
func NewSpinner(out io.Writer) *Spinner {
	return &Spinner{out: out, tty: IsTerminal(out), frames: spinner.Dot}
}

// Start shows label. Calling Start on a running spinner only changes the label.
func (s *Spinner) Start(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.label = label
	if s.stop != nil {
		return
	}
	s.started = time.Now()
	s.paused = false
	if !s.tty {
		fmt.Fprintf(s.out, "%s...\n", label)
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
}

func (s *Spinner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.frames.FPS)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.paused {
				s.draw()
			}
			s.mu.Unlock()
		}
	}
}

// draw must be called with s.mu held.
func (s *Spinner) draw() {
	frame := s.frames.Frames[s.frame%len(s.frames.Frames)]
	s.frame++
	elapsed := DimStyle.Render("[" + formatDuration(time.Since(s.started)) + "]")
	fmt.Fprintf(s.out, "\r\033[2K%s %s %s", spinnerStyle.Render(frame), s.label, elapsed)
	s.drawn = true
}

// clear must be called with s.mu held.
func (s *Spinner) clear() {
	if s.drawn {
		fmt.Fprint(s.out, "\r\033[2K")
		s.drawn = false
	}
}

// Pause erases the spinner line and stops redrawing until Resume.
func (s *Spinner) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.clear()
}

// Resume continues drawing after Pause.
func (s *Spinner) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Stop erases the spinner and waits for its goroutine. It is safe to call
// more than once.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done

	s.mu.Lock()
	s.clear()
	s.mu.Unlock()
}
