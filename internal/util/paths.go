// Package util holds small filesystem helpers shared across repomirror.
package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// AppName is used for config and scratch directory names.
const AppName = "repomirror"

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// ConfigDir returns the repomirror configuration directory under XDG_CONFIG_HOME.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultScratchRoot returns the default parent for per-attempt working trees.
func DefaultScratchRoot() string {
	return filepath.Join(os.TempDir(), AppName)
}

// ExpandPath expands a leading ~ to the home directory and cleans the result.
// Relative paths are left relative.
func ExpandPath(p string) string {
	if p == "" {
		return ""
	}
	if p == "~" {
		return HomeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(HomeDir(), p[2:])
	}
	return filepath.Clean(p)
}
