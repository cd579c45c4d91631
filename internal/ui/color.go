// Package ui provides terminal output helpers for repomirror.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Color function types for styled output.
var (
	// Success is used for mirrored pairs (green).
	Success = color.New(color.FgGreen).SprintFunc()
	// Error is used for failed pairs (red).
	Error = color.New(color.FgRed).SprintFunc()
	// Warning is used for retries and configuration problems (yellow).
	Warning = color.New(color.FgYellow).SprintFunc()
	// Info is used for informational messages (cyan).
	Info = color.New(color.FgCyan).SprintFunc()
	// Bold is used for emphasis.
	Bold = color.New(color.Bold).SprintFunc()
	// Dim is used for secondary information (faint).
	Dim = color.New(color.Faint).SprintFunc()
)

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolRetry   = "↻"
	SymbolArrow   = "→"
)

func status(paint func(a ...any) string, symbol, msg string) string {
	if msg == "" {
		return paint(symbol)
	}
	return paint(symbol) + " " + msg
}

// StatusSuccess returns a green checkmark with optional message.
func StatusSuccess(msg string) string {
	return status(Success, SymbolSuccess, msg)
}

// StatusError returns a red X with optional message.
func StatusError(msg string) string {
	return status(Error, SymbolError, msg)
}

// StatusWarning returns a yellow warning sign with optional message.
func StatusWarning(msg string) string {
	return status(Warning, SymbolWarning, msg)
}

// StatusRetry returns a yellow retry symbol with optional message.
func StatusRetry(msg string) string {
	return status(Warning, SymbolRetry, msg)
}

// Pair formats a source/destination pair for display.
func Pair(source, dest string) string {
	return fmt.Sprintf("%s %s %s", source, Dim(SymbolArrow), dest)
}

// DisableColors disables all color output.
func DisableColors() {
	color.NoColor = true
}

// EnableColors enables color output.
func EnableColors() {
	color.NoColor = false
}

// IsColorEnabled returns whether colors are currently enabled.
func IsColorEnabled() bool {
	return !color.NoColor
}

// ApplyColorMode applies a configured color mode: "always", "never" or
// "auto". Auto leaves fatih/color's own terminal and NO_COLOR detection alone.
func ApplyColorMode(mode string) error {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return nil
	case "always":
		EnableColors()
		return nil
	case "never":
		DisableColors()
		return nil
	default:
		return fmt.Errorf("invalid color mode %q (valid: auto, always, never)", mode)
	}
}
