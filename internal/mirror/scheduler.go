package mirror

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/klauern/repomirror/internal/git"
	"github.com/klauern/repomirror/internal/logging"
	"github.com/klauern/repomirror/internal/model"
)

// Runner resolves one pair to a terminal outcome.
type Runner interface {
	Run(ctx context.Context, pair model.RepoPair) model.SyncOutcome
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, pair model.RepoPair) model.SyncOutcome

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, pair model.RepoPair) model.SyncOutcome {
	return f(ctx, pair)
}

// Scheduler runs every pair through Runner with at most Concurrency pairs
// in flight. Tasks are independent: a failure or panic in one never stops
// its siblings.
type Scheduler struct {
	Runner      Runner
	Concurrency int
	// OnOutcome is called once per pair as outcomes arrive, always from the
	// same goroutine.
	OnOutcome func(model.SyncOutcome)
}

// Run blocks until every pair has an outcome and returns them in completion
// order. Each outcome's Index is the pair's position in pairs.
func (s *Scheduler) Run(ctx context.Context, pairs []model.RepoPair) []model.SyncOutcome {
	limit := s.Concurrency
	if limit < 1 {
		limit = 1
	}
	defer logging.Timer("schedule")()
	logging.Info("scheduling pairs", logging.Count(len(pairs)), "concurrency", limit)

	results := make(chan model.SyncOutcome)
	collected := make(chan []model.SyncOutcome, 1)
	go func() {
		outcomes := make([]model.SyncOutcome, 0, len(pairs))
		for o := range results {
			if s.OnOutcome != nil {
				s.OnOutcome(o)
			}
			outcomes = append(outcomes, o)
		}
		collected <- outcomes
	}()

	var g errgroup.Group
	g.SetLimit(limit)
	for i, pair := range pairs {
		g.Go(func() error {
			results <- s.runOne(ctx, i, pair)
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	return <-collected
}

func (s *Scheduler) runOne(ctx context.Context, index int, pair model.RepoPair) (outcome model.SyncOutcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("sync task panicked", logging.Source(git.Redact(pair.Source)), "panic", r)
			outcome = model.SyncOutcome{
				Pair:         pair,
				Index:        index,
				AttemptsUsed: 1,
				LastError:    fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	outcome = s.Runner.Run(ctx, pair)
	outcome.Pair = pair
	outcome.Index = index
	return outcome
}
