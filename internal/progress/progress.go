// Package progress provides a progress indicator for mirror runs.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/klauern/repomirror/internal/logging"
	"github.com/klauern/repomirror/internal/ui"
)

// Bar wraps progressbar with repomirror's color and logging settings.
// A disabled Bar accepts every call and does nothing.
type Bar struct {
	bar     *progressbar.ProgressBar
	enabled bool
	desc    string
	base    string
	failed  int
}

// Options configures the progress bar behavior.
type Options struct {
	// Max is the total number of steps (pairs).
	Max int64
	// Description is the prefix text shown before the progress bar.
	Description string
	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer
	// Disabled forces the bar off regardless of terminal detection.
	Disabled bool
}

// New creates a progress bar. It renders only on a color-enabled terminal
// while debug logging is off; otherwise start and finish go to the debug log.
func New(opts Options) *Bar {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}

	b := &Bar{
		enabled: !opts.Disabled && shouldShowProgress(opts.Writer),
		desc:    opts.Description,
		base:    opts.Description,
	}

	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s started", opts.Description),
			logging.Count(int(opts.Max)))
		return b
	}

	b.bar = progressbar.NewOptions64(
		opts.Max,
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWriter(opts.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(opts.Writer, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
	)

	return b
}

// Enabled reports whether the bar renders anything.
func (b *Bar) Enabled() bool {
	return b.enabled
}

// Add increments the progress bar by n steps.
func (b *Bar) Add(n int) error {
	if !b.enabled {
		return nil
	}
	return b.bar.Add(n)
}

// Observe advances the bar by one finished pair. Failures are counted in
// the description so they stay visible while the run continues.
func (b *Bar) Observe(succeeded bool) error {
	if !succeeded {
		b.failed++
		b.Describe(fmt.Sprintf("%s (%d failed)", b.base, b.failed))
	}
	return b.Add(1)
}

// Failed returns the number of failures observed.
func (b *Bar) Failed() int {
	return b.failed
}

// Describe updates the progress bar description.
func (b *Bar) Describe(desc string) {
	b.desc = desc
	if !b.enabled {
		return
	}
	b.bar.Describe(desc)
}

// Finish completes the progress bar.
func (b *Bar) Finish() error {
	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s completed", b.desc))
		return nil
	}
	return b.bar.Finish()
}

// shouldShowProgress determines if progress bars should be displayed.
func shouldShowProgress(w io.Writer) bool {
	if !ui.IsColorEnabled() {
		return false
	}

	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}

	// Bar redraws would interleave with debug logs
	return !logging.Default().Enabled(context.Background(), logging.LevelDebug)
}
