// Package report aggregates sync outcomes into a summary and a failure
// record that can be fed back in as a pairs file.
package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauern/repomirror/internal/git"
	"github.com/klauern/repomirror/internal/logging"
	"github.com/klauern/repomirror/internal/model"
	"github.com/klauern/repomirror/internal/pairs"
	"github.com/klauern/repomirror/internal/ui"
)

// SyncReport is the aggregate of a completed run.
type SyncReport struct {
	// Total is the number of outcomes.
	Total int

	// Succeeded is the number of pairs that synced.
	Succeeded int

	// Failed lists the pairs that exhausted their attempts, in input order.
	Failed []model.RepoPair

	// Outcomes holds every outcome in input order.
	Outcomes []model.SyncOutcome

	// FailureLog is the path of the failure record, empty when none was
	// written.
	FailureLog string
}

// Success returns true if no pair failed.
func (r *SyncReport) Success() bool {
	return len(r.Failed) == 0
}

// FailedOutcomes returns the outcomes of failed pairs.
func (r *SyncReport) FailedOutcomes() []model.SyncOutcome {
	var failed []model.SyncOutcome
	for _, o := range r.Outcomes {
		if !o.Succeeded {
			failed = append(failed, o)
		}
	}
	return failed
}

// Summary returns a one-line count summary.
func (r *SyncReport) Summary() string {
	return fmt.Sprintf("%d total, %d succeeded, %d failed", r.Total, r.Succeeded, len(r.Failed))
}

// Build partitions outcomes. The input slice is not modified.
func Build(outcomes []model.SyncOutcome) *SyncReport {
	ordered := make([]model.SyncOutcome, len(outcomes))
	copy(ordered, outcomes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	r := &SyncReport{Total: len(ordered), Outcomes: ordered}
	for _, o := range ordered {
		if o.Succeeded {
			r.Succeeded++
			continue
		}
		r.Failed = append(r.Failed, o.Pair)
	}
	return r
}

// Reporter writes the failure record and the human-readable summary.
type Reporter struct {
	// FailureLog is where failed pairs are written. Empty disables it.
	FailureLog string
	// Out receives the summary. Nil discards it.
	Out io.Writer
	// Verbose lists every pair, not only failures.
	Verbose bool
}

// Report builds the report, writes the failure record when at least one
// pair failed, and prints the summary. A run with no failures leaves any
// existing failure record untouched.
func (rp *Reporter) Report(outcomes []model.SyncOutcome) (*SyncReport, error) {
	r := Build(outcomes)

	if !r.Success() && rp.FailureLog != "" {
		if err := WriteFailureLog(rp.FailureLog, r.Failed); err != nil {
			return r, err
		}
		r.FailureLog = rp.FailureLog
		logging.Info("wrote failure record", logging.Path(rp.FailureLog), logging.Count(len(r.Failed)))
	}

	if rp.Out != nil {
		if _, err := io.WriteString(rp.Out, rp.render(r)); err != nil {
			return r, fmt.Errorf("failed to write summary: %w", err)
		}
	}
	return r, nil
}

func (rp *Reporter) render(r *SyncReport) string {
	var sb strings.Builder

	for _, o := range r.Outcomes {
		pair := ui.Pair(git.Redact(o.Pair.Source), git.Redact(o.Pair.Dest))
		switch {
		case !o.Succeeded:
			sb.WriteString(ui.StatusError(pair) + "\n")
			if o.LastError != "" {
				sb.WriteString(fmt.Sprintf("    %s\n", ui.Dim(o.LastError)))
			}
		case rp.Verbose:
			line := pair
			if o.AttemptsUsed > 1 {
				line += ui.Dim(fmt.Sprintf(" (attempt %d)", o.AttemptsUsed))
			}
			sb.WriteString(ui.StatusSuccess(line) + "\n")
		}
	}

	if r.Total > 0 && (rp.Verbose || !r.Success()) {
		sb.WriteString("\n")
	}
	sb.WriteString(ui.Bold("Summary:") + " " + r.Summary() + "\n")
	if r.FailureLog != "" {
		sb.WriteString(ui.StatusWarning(fmt.Sprintf("Failed pairs written to %s", r.FailureLog)) + "\n")
	}
	return sb.String()
}

// WriteFailureLog replaces path with one "source,dest" line per pair.
func WriteFailureLog(path string, failed []model.RepoPair) error {
	var buf bytes.Buffer
	if err := pairs.Write(&buf, failed); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create failure record directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write failure record: %w", err)
	}
	return nil
}
