// Package model defines the core data types shared across repomirror packages.
package model

import (
	"fmt"
	"path"
	"strings"
)

// RepoPair is one unit of mirror work: a source repository and the
// destination it is pushed to. Pairs are immutable once read.
type RepoPair struct {
	// Source is the location the repository is cloned from.
	Source string
	// Dest is the location the repository is pushed to.
	Dest string
}

// String renders the pair in the pair-file format ("source,dest").
func (p RepoPair) String() string {
	return p.Source + "," + p.Dest
}

// ShortName returns the trailing path segment of the source location with
// any ".git" suffix removed. It is a display name only and is not unique.
func (p RepoPair) ShortName() string {
	loc := strings.TrimRight(p.Source, "/")
	// scp-style locations (git@host:group/repo.git) have no slash before the path
	if i := strings.LastIndexAny(loc, "/:"); i >= 0 {
		loc = loc[i+1:]
	}
	name := strings.TrimSuffix(path.Base(loc), ".git")
	if name == "" || name == "." || name == "/" {
		return "repo"
	}
	return name
}

// PushMode selects how refs are published to the destination.
type PushMode string

const (
	// PushMirror replaces every ref at the destination with the source's ref set.
	PushMirror PushMode = "mirror"

	// PushBranch force-pushes a single branch.
	PushBranch PushMode = "branch"
)

// IsValid returns true if the push mode is recognized.
func (m PushMode) IsValid() bool {
	switch m {
	case PushMirror, PushBranch:
		return true
	default:
		return false
	}
}

// String returns the string representation of the push mode.
func (m PushMode) String() string {
	return string(m)
}

// Description returns a human-readable description of the push mode.
func (m PushMode) Description() string {
	switch m {
	case PushMirror:
		return "Replace all destination branches and tags with the source refs"
	case PushBranch:
		return "Force-push one branch to the destination"
	default:
		return "Unknown push mode"
	}
}

// ParsePushMode converts a string to a PushMode.
func ParsePushMode(s string) (PushMode, error) {
	m := PushMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("invalid push mode %q (valid: %s, %s)", s, PushMirror, PushBranch)
	}
	return m, nil
}
