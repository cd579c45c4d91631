// Package workspace manages the scratch directories that hold temporary
// clones while a pair is being mirrored.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/klauern/repomirror/internal/logging"
	"github.com/klauern/repomirror/internal/model"
)

// Dir is a scratch location owned by a single sync attempt.
type Dir struct {
	// Root is the scratch root the directory lives under.
	Root string
	// Path is the absolute path of the working directory.
	Path string
}

// Allocate reserves a unique working directory for pair under root. The
// root is created if needed; the leaf is not, since clone requires that the
// target does not exist.
func Allocate(root string, pair model.RepoPair) (Dir, error) {
	if root == "" {
		return Dir{}, errors.New("scratch root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Dir{}, fmt.Errorf("failed to resolve scratch root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return Dir{}, fmt.Errorf("failed to create scratch root: %w", err)
	}

	name := sanitize(pair.ShortName()) + "-" + uuid.NewString()
	return Dir{Root: abs, Path: filepath.Join(abs, name)}, nil
}

// Remove deletes the working directory. A directory that was never created
// is not an error.
func (d Dir) Remove() error {
	if d.Path == "" || d.Path == d.Root {
		return nil
	}
	if err := os.RemoveAll(d.Path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", d.Path, err)
	}
	return nil
}

// Exists reports whether the working directory is present on disk.
func (d Dir) Exists() bool {
	_, err := os.Stat(d.Path)
	return err == nil
}

// Entry describes a directory found under the scratch root.
type Entry struct {
	Path    string
	ModTime time.Time
}

// List returns the directories under root, oldest first. A missing root
// yields no entries.
func List(root string) ([]Entry, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read scratch root: %w", err)
	}

	var out []Entry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Path: filepath.Join(root, e.Name()), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ModTime.Before(out[j].ModTime)
	})
	return out, nil
}

// Prune removes directories under root last modified more than olderThan
// ago. It returns the paths that were (or in dry-run mode, would be)
// removed.
func Prune(root string, olderThan time.Duration, dryRun bool) ([]string, error) {
	entries, err := List(root)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-olderThan)
	var removed []string
	for _, e := range entries {
		if e.ModTime.After(cutoff) {
			continue
		}
		if !dryRun {
			if err := os.RemoveAll(e.Path); err != nil {
				return removed, fmt.Errorf("failed to remove %s: %w", e.Path, err)
			}
			logging.Debug("pruned scratch directory", logging.Path(e.Path))
		}
		removed = append(removed, e.Path)
	}
	return removed, nil
}

// sanitize keeps directory names to a safe character set.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "repo"
	}
	return s
}
