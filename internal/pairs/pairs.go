// Package pairs reads the line-oriented "source,dest" repository pair list.
package pairs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauern/repomirror/internal/model"
)

// Stdin is the path that makes Load read from standard input.
const Stdin = "-"

// ConfigError reports a pair line that could not be parsed. It is fatal for
// that line only.
type ConfigError struct {
	// Line is the 1-based line number
	Line int
	// Text is the raw line content
	Text string
	// Reason describes why the line was rejected
	Reason string
}

// Error returns a formatted error message.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Result is the outcome of parsing a pair list.
type Result struct {
	// Pairs holds the valid pairs in input order. Duplicates are kept.
	Pairs []model.RepoPair
	// Errors holds one entry per rejected line.
	Errors []*ConfigError
}

// HasErrors returns true if any line was rejected.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Parse reads pairs from r. Each line must be "source,dest" with both fields
// non-empty. Blank and malformed lines are recorded as ConfigErrors and
// parsing continues. Lines starting with '#' are comments. Only read errors
// are returned as error.
func Parse(r io.Reader) (*Result, error) {
	result := &Result{}
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(line, "#") {
			continue
		}

		pair, reason := parseLine(line)
		if reason != "" {
			result.Errors = append(result.Errors, &ConfigError{Line: lineNo, Text: raw, Reason: reason})
			continue
		}
		result.Pairs = append(result.Pairs, pair)
	}

	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("failed to read pairs: %w", err)
	}
	return result, nil
}

func parseLine(line string) (model.RepoPair, string) {
	if line == "" {
		return model.RepoPair{}, "blank line"
	}

	fields := strings.Split(line, ",")
	if len(fields) != 2 {
		return model.RepoPair{}, fmt.Sprintf("expected 2 comma-separated fields, got %d", len(fields))
	}

	source := strings.TrimSpace(fields[0])
	dest := strings.TrimSpace(fields[1])
	switch {
	case source == "":
		return model.RepoPair{}, "empty source location"
	case dest == "":
		return model.RepoPair{}, "empty destination location"
	}
	return model.RepoPair{Source: source, Dest: dest}, ""
}

// Load parses the pair list at path; "-" reads standard input.
func Load(path string) (*Result, error) {
	if path == Stdin {
		return Parse(os.Stdin)
	}

	// #nosec G304 - path is provided by the user
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pairs file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Write renders pairs in the list format, one per line.
func Write(w io.Writer, pairs []model.RepoPair) error {
	for _, p := range pairs {
		if _, err := fmt.Fprintln(w, p.String()); err != nil {
			return err
		}
	}
	return nil
}
