package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/klauern/repomirror/internal/git"
	"github.com/klauern/repomirror/internal/logging"
	"github.com/klauern/repomirror/internal/model"
)

// Policy bounds the attempts made for a single pair.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay is the fixed pause between consecutive attempts.
	Delay time.Duration
}

// DefaultPolicy returns three attempts with a five second delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: 5 * time.Second}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts))
	}
	if p.Delay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must not be negative, got %s", p.Delay))
	}
	return errors.Join(errs...)
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// AttemptFunc observes a failed attempt.
type AttemptFunc func(pair model.RepoPair, attempt int, err error)

// Retrier runs a Syncer until it succeeds or the policy is exhausted.
// Attempts for one pair are strictly sequential.
type Retrier struct {
	Syncer Syncer
	Policy Policy
	// Sleep replaces the real delay, mainly in tests.
	Sleep SleepFunc
	// OnAttempt is called after every failed attempt.
	OnAttempt AttemptFunc
}

// NewRetrier creates a Retrier for syncer with policy.
func NewRetrier(syncer Syncer, policy Policy) *Retrier {
	return &Retrier{Syncer: syncer, Policy: policy}
}

// Run resolves pair to a terminal outcome. It never returns an error: every
// failure is recorded in the outcome.
func (r *Retrier) Run(ctx context.Context, pair model.RepoPair) model.SyncOutcome {
	maxAttempts := r.Policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delays := backoff.NewConstantBackOff(r.Policy.Delay)
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	log := logging.WithContext(ctx).With(logging.Source(git.Redact(pair.Source)), logging.Dest(git.Redact(pair.Dest)))

	outcome := model.SyncOutcome{Pair: pair}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			outcome.LastError = canceled(err, outcome.LastError)
			return outcome
		}

		outcome.AttemptsUsed = attempt
		err := r.Syncer.Sync(logging.NewContext(ctx, log.With(logging.Attempt(attempt))), pair)
		if err == nil {
			outcome.Succeeded = true
			outcome.LastError = ""
			if attempt > 1 {
				log.Info("sync succeeded after retry", logging.Attempt(attempt))
			}
			return outcome
		}

		outcome.LastError = err.Error()
		attrs := []any{logging.Attempt(attempt), logging.Err(err)}
		if stage, ok := StageOf(err); ok {
			attrs = append(attrs, logging.Stage(string(stage)))
		}
		log.Warn("sync attempt failed", attrs...)
		if r.OnAttempt != nil {
			r.OnAttempt(pair, attempt, err)
		}

		if attempt >= maxAttempts {
			return outcome
		}
		if err := sleep(ctx, delays.NextBackOff()); err != nil {
			outcome.LastError = canceled(err, outcome.LastError)
			return outcome
		}
	}
}

func canceled(err error, last string) string {
	if last == "" {
		return fmt.Sprintf("canceled: %v", err)
	}
	return fmt.Sprintf("canceled: %v (last error: %s)", err, last)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
