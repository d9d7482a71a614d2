package queue

import (
	"context"
	"errors"
	"time"

	"miniq/internal/logging"
	"miniq/internal/stats"
)

// Budget bounds Run. Zero fields are unlimited.
type Budget struct {
	MaxIterations int
	MaxDuration   time.Duration
}

func (b Budget) exhausted(iterations int, elapsed time.Duration) bool {
	if b.MaxIterations > 0 && iterations >= b.MaxIterations {
		return true
	}
	return b.MaxDuration > 0 && elapsed >= b.MaxDuration
}

// IterationResult summarizes one loop iteration.
type IterationResult struct {
	Ingested int
	Done     int
	Started  int
}

// Busy reports whether the iteration did any work.
func (r IterationResult) Busy() bool {
	return r.Ingested > 0 || r.Done > 0 || r.Started > 0
}

// RunIteration runs the three phases in order. Every phase runs even when an
// earlier one fails; the errors are joined.
func (q *Queue) RunIteration(ctx context.Context) (IterationResult, error) {
	var result IterationResult
	var errs []error
	var err error

	if result.Ingested, err = q.IngestJournal(ctx); err != nil {
		errs = append(errs, err)
	}
	if result.Done, err = q.HandleDoneJobs(ctx); err != nil {
		errs = append(errs, err)
	}
	if result.Started, err = q.RunNewJobs(ctx); err != nil {
		errs = append(errs, err)
	}
	err = errors.Join(errs...)
	q.recordIteration(err)
	q.stats.Incr(ctx, stats.LoopIteration)
	return result, err
}

// Run repeats RunIteration until ctx ends or budget is exhausted. The budget
// is checked between iterations only. Iteration errors are logged and the
// loop continues. When an iteration does no work Run sleeps for the poll
// interval.
func (q *Queue) Run(ctx context.Context, budget Budget) error {
	start := time.Now()
	for iterations := 0; ; iterations++ {
		if budget.exhausted(iterations, time.Since(start)) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := q.RunIteration(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.stats.Incr(ctx, stats.LoopError)
			logging.ErrorWithContext(q.logger, "queue iteration failed", "queue_iteration_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check job store and journal connectivity"),
				logging.String(logging.FieldImpact, "the loop continues; failed work is retried"),
			)
		}
		if result.Busy() && err == nil {
			continue
		}
		if budget.exhausted(iterations+1, time.Since(start)) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(q.settings.PollInterval):
		}
	}
}
