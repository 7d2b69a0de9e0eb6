// attachments.go writes large prompt inputs to a temporary directory so the
// prompt can reference them by path instead of inlining them.
package opencode

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// AttachmentDirPrefix prefixes every attachment directory created under the
// system temp dir.
const AttachmentDirPrefix = "ocmt-"

// Attachment is a named blob handed to the backend as a file.
type Attachment struct {
	Name    string
	Content string
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeName reduces name to a safe base file name.
func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = unsafeNameChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, ".-")
	if name == "" {
		return "attachment.txt"
	}
	return name
}

// uniqueName returns name, or name with a numeric suffix before the extension
// if it is already taken.
func uniqueName(name string, taken map[string]bool) string {
	if !taken[name] {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}

// attachmentDir is a temp directory holding one invocation's attachments.
type attachmentDir struct {
	path  string
	files []string
}

// writeAttachments writes attachments to a fresh directory under root (the
// system temp dir when empty). It returns a nil dir when there is nothing to write.
func writeAttachments(root string, attachments []Attachment) (*attachmentDir, error) {
	if len(attachments) == 0 {
		return nil, nil
	}

	path, err := os.MkdirTemp(root, AttachmentDirPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("creating attachment directory: %w", err)
	}

	dir := &attachmentDir{path: path}
	taken := make(map[string]bool, len(attachments))
	for _, a := range attachments {
		name := uniqueName(sanitizeName(a.Name), taken)
		taken[name] = true

		file := filepath.Join(path, name)
		if err := os.WriteFile(file, []byte(a.Content), 0600); err != nil {
			_ = dir.remove()
			return nil, fmt.Errorf("writing attachment %s: %w", name, err)
		}
		dir.files = append(dir.files, file)
	}
	return dir, nil
}

// promptSection lists the attachment paths for inclusion in the prompt.
func (d *attachmentDir) promptSection() string {
	if d == nil || len(d.files) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nThe following files contain the full input. Read them before answering:\n")
	for _, f := range d.files {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return b.String()
}

// remove deletes the directory and everything in it.
func (d *attachmentDir) remove() error {
	if d == nil {
		return nil
	}
	return os.RemoveAll(d.path)
}
