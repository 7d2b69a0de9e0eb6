package ui

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Editor returns the user's editor command: $VISUAL, $EDITOR, then vi.
func Editor() string {
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	return "vi"
}

// EditText opens text in editor (a command line such as "code --wait") and
// returns the saved content with surrounding whitespace trimmed.
func EditText(ctx context.Context, editor, text string) (string, error) {
	args := strings.Fields(editor)
	if len(args) == 0 {
		return "", fmt.Errorf("no editor configured")
	}

	f, err := os.CreateTemp("", "ocmt-edit-*.txt")
	if err != nil {
		return "", fmt.Errorf("creating edit file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(text + "\n"); err != nil {
		f.Close()
		return "", fmt.Errorf("writing edit file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing edit file: %w", err)
	}

	cmd := exec.CommandContext(ctx, args[0], append(args[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running editor %s: %w", args[0], err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading edit file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
