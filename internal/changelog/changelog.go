// Package changelog reads and updates a Markdown changelog file.
package changelog

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// DefaultHeader starts a changelog created from scratch.
const DefaultHeader = "# Changelog\n\nAll notable changes to this project are documented in this file.\n"

// versionHeading matches a release section heading such as "## [1.2.0] - 2024-05-01"
// or "## v1.2.0".
var versionHeading = regexp.MustCompile(`(?m)^## `)

// Read returns the content of path, or "" when it does not exist.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading changelog: %w", err)
	}
	return string(data), nil
}

// Insert places entry above the newest release section of existing, keeping
// any preamble on top. An empty existing gets DefaultHeader.
func Insert(existing, entry string) string {
	entry = strings.TrimSpace(entry) + "\n"
	if strings.TrimSpace(existing) == "" {
		return DefaultHeader + "\n" + entry
	}

	loc := versionHeading.FindStringIndex(existing)
	if loc == nil {
		return strings.TrimRight(existing, "\n") + "\n\n" + entry
	}
	head := existing[:loc[0]]
	rest := existing[loc[0]:]
	if strings.TrimSpace(head) == "" {
		return entry + "\n" + rest
	}
	return strings.TrimRight(head, "\n") + "\n\n" + entry + "\n" + rest
}

// Prepend inserts entry into the changelog at path, creating it if needed.
func Prepend(path, entry string) error {
	existing, err := Read(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(Insert(existing, entry)), 0644); err != nil {
		return fmt.Errorf("writing changelog: %w", err)
	}
	return nil
}

// Write replaces the changelog at path.
func Write(path, content string) error {
	content = strings.TrimRight(content, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing changelog: %w", err)
	}
	return nil
}

// LatestSection returns the first "## " section of content without its
// successors, or "" when there is none.
func LatestSection(content string) string {
	locs := versionHeading.FindAllStringIndex(content, 2)
	switch len(locs) {
	case 0:
		return ""
	case 1:
		return strings.TrimSpace(content[locs[0][0]:])
	default:
		return strings.TrimSpace(content[locs[0][0]:locs[1][0]])
	}
}

// ReplaceLatest swaps the first "## " section of content for section. Content
// without a release section gets section appended as by Insert.
func ReplaceLatest(content, section string) string {
	locs := versionHeading.FindAllStringIndex(content, 2)
	if len(locs) == 0 {
		return Insert(content, section)
	}
	section = strings.TrimSpace(section) + "\n"
	if len(locs) == 1 {
		return content[:locs[0][0]] + section
	}
	return content[:locs[0][0]] + section + "\n" + content[locs[1][0]:]
}

// HasVersion reports whether section's heading names version.
func HasVersion(section, version string) bool {
	heading, _, _ := strings.Cut(section, "\n")
	if version == "" || !strings.HasPrefix(heading, "## ") {
		return false
	}
	bare := strings.TrimPrefix(version, "v")
	return regexp.MustCompile(`\bv?` + regexp.QuoteMeta(bare) + `\b`).MatchString(heading)
}
