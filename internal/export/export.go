// Package export renders a completed run as a machine-readable document.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/klauern/repomirror/internal/git"
	"github.com/klauern/repomirror/internal/logging"
	"github.com/klauern/repomirror/internal/report"
)

// Format represents the output format of an exported report.
type Format string

const (
	// FormatJSON exports the report as JSON.
	FormatJSON Format = "json"
	// FormatYAML exports the report as YAML.
	FormatYAML Format = "yaml"
	// FormatMarkdown exports the report as a Markdown table.
	FormatMarkdown Format = "markdown"
)

// IsValid returns true if the format is recognized.
func (f Format) IsValid() bool {
	switch f {
	case FormatJSON, FormatYAML, FormatMarkdown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the format.
func (f Format) String() string {
	return string(f)
}

// AllFormats returns all supported export formats.
func AllFormats() []Format {
	return []Format{FormatJSON, FormatYAML, FormatMarkdown}
}

// ParseFormat parses a string into a Format.
func ParseFormat(s string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(s)))
	if !format.IsValid() {
		valid := make([]string, 0, len(AllFormats()))
		for _, f := range AllFormats() {
			valid = append(valid, f.String())
		}
		return "", fmt.Errorf("unsupported format %q (valid: %s)", s, strings.Join(valid, ", "))
	}
	return format, nil
}

// FormatForPath picks a format from a file extension, falling back to JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatJSON
	}
}

// Document is the exported shape of a run. Locations are redacted.
type Document struct {
	GeneratedAt string    `json:"generated_at" yaml:"generated_at"`
	Total       int       `json:"total" yaml:"total"`
	Succeeded   int       `json:"succeeded" yaml:"succeeded"`
	Failed      int       `json:"failed" yaml:"failed"`
	FailureLog  string    `json:"failure_log,omitempty" yaml:"failure_log,omitempty"`
	Outcomes    []Outcome `json:"outcomes" yaml:"outcomes"`
}

// Outcome is the exported form of one pair's result.
type Outcome struct {
	Index     int    `json:"index" yaml:"index"`
	Source    string `json:"source" yaml:"source"`
	Dest      string `json:"dest" yaml:"dest"`
	Succeeded bool   `json:"succeeded" yaml:"succeeded"`
	Attempts  int    `json:"attempts" yaml:"attempts"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Exporter writes reports in a single format.
type Exporter struct {
	Format Format

	// now is replaced in tests
	now func() time.Time
}

// New creates an Exporter for format.
func New(format Format) *Exporter {
	return &Exporter{Format: format, now: time.Now}
}

// Document converts r to its exported shape.
func (e *Exporter) Document(r *report.SyncReport) Document {
	now := time.Now
	if e.now != nil {
		now = e.now
	}
	doc := Document{
		GeneratedAt: now().UTC().Format(time.RFC3339),
		Total:       r.Total,
		Succeeded:   r.Succeeded,
		Failed:      len(r.Failed),
		FailureLog:  r.FailureLog,
		Outcomes:    make([]Outcome, 0, len(r.Outcomes)),
	}
	for _, o := range r.Outcomes {
		doc.Outcomes = append(doc.Outcomes, Outcome{
			Index:     o.Index,
			Source:    git.Redact(o.Pair.Source),
			Dest:      git.Redact(o.Pair.Dest),
			Succeeded: o.Succeeded,
			Attempts:  o.AttemptsUsed,
			Error:     o.LastError,
		})
	}
	return doc
}

// Export writes r to w in the configured format.
func (e *Exporter) Export(r *report.SyncReport, w io.Writer) error {
	defer logging.Timer("export")()

	doc := e.Document(r)
	var err error
	switch e.Format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err = enc.Encode(doc); err == nil {
			err = enc.Close()
		} else {
			_ = enc.Close()
		}
	case FormatMarkdown:
		err = writeMarkdown(w, doc)
	default:
		err = fmt.Errorf("unsupported format: %s", e.Format)
	}

	if err != nil {
		logging.Error("export failed", slog.String("format", string(e.Format)), logging.Err(err))
		return err
	}
	logging.Debug("report exported", slog.String("format", string(e.Format)), logging.Count(doc.Total))
	return nil
}

// ExportFile writes r to path, creating parent directories.
func (e *Exporter) ExportFile(r *report.SyncReport, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	// #nosec G304 - path is provided by the operator
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := e.Export(r, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeMarkdown(w io.Writer, doc Document) error {
	var sb strings.Builder

	sb.WriteString("# Mirror Report\n\n")
	fmt.Fprintf(&sb, "Generated %s: %d total, %d succeeded, %d failed\n\n",
		doc.GeneratedAt, doc.Total, doc.Succeeded, doc.Failed)
	if doc.FailureLog != "" {
		fmt.Fprintf(&sb, "Failed pairs written to `%s`\n\n", doc.FailureLog)
	}

	sb.WriteString("| # | Source | Destination | Result | Attempts | Error |\n")
	sb.WriteString("|---|--------|-------------|--------|----------|-------|\n")
	for _, o := range doc.Outcomes {
		result := "ok"
		if !o.Succeeded {
			result = "failed"
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %d | %s |\n",
			o.Index+1, o.Source, o.Dest, result, o.Attempts, escapeCell(o.Error))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
