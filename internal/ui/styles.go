package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	primaryColor = "#7C3AED"
	successColor = "#10B981"
	warningColor = "#F59E0B"
	errorColor   = "#EF4444"
	dimColor     = "#6B7280"
)

var (
	// TitleStyle renders headings.
	TitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(primaryColor)).Bold(true)

	// BoxStyle frames generated text shown for review.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(primaryColor)).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(successColor))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(warningColor))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(errorColor))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(dimColor))
)

// Success prints a green check line.
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warn prints an amber warning line.
func Warn(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, WarningStyle.Render("! "+fmt.Sprintf(format, args...)))
}

// Error prints a red error line.
func Error(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Box prints text framed under a title.
func Box(w io.Writer, title, text string) {
	fmt.Fprintln(w, TitleStyle.Render(title))
	fmt.Fprintln(w, BoxStyle.Render(text))
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm%ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
