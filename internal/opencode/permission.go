// permission.go renders permission escalations and collects a bounded-time
// decision from the user.
package opencode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// DefaultPermissionTimeout bounds a single escalation prompt.
const DefaultPermissionTimeout = 60 * time.Second

// Permission types with a specialized description.
const (
	PermissionBash              = "bash"
	PermissionEdit              = "edit"
	PermissionWebFetch          = "webfetch"
	PermissionDoomLoop          = "doom_loop"
	PermissionExternalDirectory = "external_directory"
)

// Negotiator decides permission requests.
type Negotiator interface {
	Negotiate(ctx context.Context, p Permission) Decision
}

// Pauser is a progress indicator that can step aside while the user is asked
// something.
type Pauser interface {
	Pause()
	Resume()
}

// LineSource supplies lines typed by the user. ReadLine returns io.EOF once
// input is closed; Discard drops lines typed before the call.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
	Discard()
}

// AutoNegotiator answers every request with a fixed decision.
type AutoNegotiator struct {
	Decision Decision
}

// Negotiate implements Negotiator.
func (a AutoNegotiator) Negotiate(context.Context, Permission) Decision {
	if a.Decision == "" {
		return DecisionReject
	}
	return a.Decision
}

var (
	permissionHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	permissionDetail = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	permissionDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TerminalNegotiator asks the user on a terminal. Timeout, EOF, cancellation
// and unrecognized input all resolve to DecisionReject.
type TerminalNegotiator struct {
	in       LineSource
	out      io.Writer
	timeout  time.Duration
	progress Pauser
	logger   *zap.Logger
}

// NewTerminalNegotiator creates a negotiator reading answers from in and
// writing prompts to out. progress may be nil.
func NewTerminalNegotiator(in LineSource, out io.Writer, timeout time.Duration, progress Pauser, logger *zap.Logger) *TerminalNegotiator {
	if timeout <= 0 {
		timeout = DefaultPermissionTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TerminalNegotiator{
		in:       in,
		out:      out,
		timeout:  timeout,
		progress: progress,
		logger:   logger,
	}
}

// Negotiate implements Negotiator.
func (n *TerminalNegotiator) Negotiate(ctx context.Context, p Permission) Decision {
	if n.progress != nil {
		n.progress.Pause()
		defer n.progress.Resume()
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	n.in.Discard()
	fmt.Fprintln(n.out)
	fmt.Fprintln(n.out, permissionHeader.Render("The assistant is asking for permission"))
	fmt.Fprintln(n.out, "  "+permissionDetail.Render(Describe(p)))
	fmt.Fprintln(n.out, "  [1] Allow once")
	fmt.Fprintln(n.out, "  [2] Always allow")
	fmt.Fprintln(n.out, "  [3] Reject")
	fmt.Fprintf(n.out, "  %s > ", permissionDim.Render(fmt.Sprintf("(rejects in %s)", n.timeout.Round(time.Second))))

	line, err := n.in.ReadLine(ctx)
	switch {
	case err == nil:
		return parseDecision(line)
	case errors.Is(err, io.EOF):
		fmt.Fprintln(n.out)
		n.logger.Debug("permission input closed; rejecting", zap.String("permission", p.ID))
	default:
		fmt.Fprintln(n.out)
		fmt.Fprintln(n.out, "  "+permissionDim.Render("No answer; rejecting."))
		n.logger.Debug("permission prompt expired; rejecting", zap.String("permission", p.ID), zap.Error(err))
	}
	return DecisionReject
}

// parseDecision maps a typed answer to a Decision.
func parseDecision(answer string) Decision {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "1", "o", "once", "y", "yes":
		return DecisionOnce
	case "2", "a", "always":
		return DecisionAlways
	default:
		return DecisionReject
	}
}

// Describe returns a one-line, human-readable description of what the
// backend wants to do.
func Describe(p Permission) string {
	pattern := strings.Join(p.Pattern, " ")
	switch p.Type {
	case PermissionBash:
		return "Run shell command: " + firstNonEmpty(metaString(p.Metadata, "command"), pattern, p.Title)
	case PermissionEdit:
		return "Edit file: " + firstNonEmpty(metaString(p.Metadata, "filePath", "filepath", "path"), pattern, p.Title)
	case PermissionWebFetch:
		return "Fetch URL: " + firstNonEmpty(metaString(p.Metadata, "url"), pattern, p.Title)
	case PermissionDoomLoop:
		detail := firstNonEmpty(metaString(p.Metadata, "tool"), p.Title)
		if detail == "" {
			return "Repetition guard: the assistant keeps repeating the same action. Let it continue?"
		}
		return "Repetition guard: the assistant keeps repeating the same action (" + detail + "). Let it continue?"
	case PermissionExternalDirectory:
		return "Access outside the working directory: " + firstNonEmpty(metaString(p.Metadata, "filepath", "filePath", "path", "directory"), pattern, p.Title)
	default:
		if p.Title != "" {
			return p.Title
		}
		if pattern != "" {
			return p.Type + ": " + pattern
		}
		return "Perform a " + firstNonEmpty(p.Type, "tool") + " action"
	}
}

func metaString(meta map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := meta[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
