package opencode

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"staged.diff":      "staged.diff",
		"../../etc/passwd": "passwd",
		"my file (1).txt":  "my-file-1-.txt",
		"":                 "attachment.txt",
		"...":              "attachment.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeName(in), "name %q", in)
	}
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{"log.txt": true, "log-2.txt": true}
	assert.Equal(t, "log-3.txt", uniqueName("log.txt", taken))
	assert.Equal(t, "other.txt", uniqueName("other.txt", taken))
}

func TestWriteAttachments(t *testing.T) {
	root := t.TempDir()

	dir, err := writeAttachments(root, []Attachment{
		{Name: "diff.patch", Content: "a"},
		{Name: "diff.patch", Content: "b"},
	})
	require.NoError(t, err)
	require.Len(t, dir.files, 2)
	assert.True(t, strings.HasPrefix(filepath.Base(dir.path), AttachmentDirPrefix))
	assert.Equal(t, "diff-2.patch", filepath.Base(dir.files[1]))

	data, err := os.ReadFile(dir.files[1])
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	section := dir.promptSection()
	for _, f := range dir.files {
		assert.Contains(t, section, f)
	}

	require.NoError(t, dir.remove())
	_, err = os.Stat(dir.path)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteAttachmentsNone(t *testing.T) {
	dir, err := writeAttachments(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Nil(t, dir)
	assert.Empty(t, dir.promptSection())
	assert.NoError(t, dir.remove())
}
