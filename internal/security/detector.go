// Package security detects credentials written directly into pair locations.
// Tokens belong in the environment; a secret in a pairs file ends up in the
// failure log and in shell history.
package security

import (
	"fmt"
	"regexp"

	"github.com/klauern/repomirror/internal/model"
)

// Severity levels.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// SensitivePattern is a named pattern for one kind of embedded secret.
type SensitivePattern struct {
	Name        string
	Pattern     *regexp.Regexp
	Description string
	Severity    string
}

// Detector performs sensitive data detection with configurable patterns.
type Detector struct {
	patterns []SensitivePattern
}

// DefaultPatterns returns the built-in patterns.
func DefaultPatterns() []SensitivePattern {
	return []SensitivePattern{
		{
			Name:        "URL Password",
			Pattern:     regexp.MustCompile(`(?i)https?://[^/@\s:]*:[^/@\s]+@`),
			Description: "password or token embedded in URL",
			Severity:    SeverityError,
		},
		{
			Name:        "GitHub Token",
			Pattern:     regexp.MustCompile(`\b(gh[pousr]_[A-Za-z0-9]{36,}|github_pat_[A-Za-z0-9_]{22,})`),
			Description: "GitHub token detected",
			Severity:    SeverityError,
		},
		{
			Name:        "GitLab Token",
			Pattern:     regexp.MustCompile(`\bglpat-[A-Za-z0-9_\-]{20,}`),
			Description: "GitLab personal access token detected",
			Severity:    SeverityError,
		},
		{
			Name:        "URL Username",
			Pattern:     regexp.MustCompile(`(?i)https?://[^/@\s:]+@`),
			Description: "username embedded in HTTPS URL is replaced when a token is set",
			Severity:    SeverityWarning,
		},
	}
}

// NewDetector creates a new detector with the given patterns.
// If patterns is nil or empty, uses DefaultPatterns().
func NewDetector(patterns []SensitivePattern) *Detector {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return &Detector{patterns: patterns}
}

// NewDetectorDefault creates a new detector with default patterns.
func NewDetectorDefault() *Detector {
	return NewDetector(nil)
}

// Finding is one detection in a pair location. It never carries the
// matched text.
type Finding struct {
	// Index is the position of the pair in the scanned list.
	Index       int
	Side        string
	Pattern     string
	Severity    string
	Description string
}

// String renders the finding without the location itself.
func (f Finding) String() string {
	return fmt.Sprintf("pair %d %s: %s", f.Index+1, f.Side, f.Description)
}

// IsError reports whether the finding has error severity.
func (f Finding) IsError() bool {
	return f.Severity == SeverityError
}

// ScanLocation returns the patterns that match loc.
func (d *Detector) ScanLocation(loc string) []SensitivePattern {
	var matched []SensitivePattern
	for _, p := range d.patterns {
		if p.Pattern.MatchString(loc) {
			matched = append(matched, p)
		}
	}
	return matched
}

// ScanPairs checks both locations of every pair.
func (d *Detector) ScanPairs(list []model.RepoPair) []Finding {
	var findings []Finding
	for i, p := range list {
		findings = append(findings, d.scan(i, "source", p.Source)...)
		findings = append(findings, d.scan(i, "destination", p.Dest)...)
	}
	return findings
}

func (d *Detector) scan(index int, side, loc string) []Finding {
	var findings []Finding
	for _, p := range d.ScanLocation(loc) {
		findings = append(findings, Finding{
			Index:       index,
			Side:        side,
			Pattern:     p.Name,
			Severity:    p.Severity,
			Description: p.Description,
		})
	}
	return findings
}

// ScanPairs checks list with the default patterns.
func ScanPairs(list []model.RepoPair) []Finding {
	return NewDetectorDefault().ScanPairs(list)
}
