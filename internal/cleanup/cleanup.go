// Package cleanup prunes temporary directories left behind by interrupted
// ocmt runs.
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultMaxAge is how old a leftover directory must be before it is pruned.
// Younger directories may belong to a run still in progress.
const DefaultMaxAge = 24 * time.Hour

// PruneStale removes directories under root whose name starts with prefix and
// whose modification time is older than maxAge. If dryRun is true, nothing is
// deleted. Returns the pruned directory names, sorted.
func PruneStale(root, prefix string, maxAge time.Duration, dryRun bool) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	cutoff := time.Now().Add(-maxAge)
	var pruned []string

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			// Removed concurrently.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if !dryRun {
			if rmErr := os.RemoveAll(filepath.Join(root, entry.Name())); rmErr != nil {
				return pruned, fmt.Errorf("removing %s: %w", entry.Name(), rmErr)
			}
		}
		pruned = append(pruned, entry.Name())
	}

	sort.Strings(pruned)
	return pruned, nil
}
