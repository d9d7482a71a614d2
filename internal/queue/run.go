package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"miniq/internal/handlers"
	"miniq/internal/jobstore"
	"miniq/internal/logging"
	"miniq/internal/stats"
)

// RunNewJobs claims one batch of a scheduler-selected type and hands it to
// the runner. It returns how many jobs were started.
func (q *Queue) RunNewJobs(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { q.stats.Observe(ctx, "run", time.Since(start)) }()

	counts, err := q.store.WaitingJobCounts(ctx)
	if err != nil {
		q.stats.Incr(ctx, stats.RunError)
		return 0, fmt.Errorf("count waiting jobs: %w", err)
	}
	jobType, ok := q.scheduler.SelectJobType(counts)
	if !ok {
		q.stats.Incr(ctx, stats.RunIdle)
		return 0, nil
	}
	limit := q.runner.BatchSize(jobType)
	if limit <= 0 {
		q.stats.Incr(ctx, stats.RunIdle)
		return 0, nil
	}

	jobs, err := q.store.GetJobs(ctx, jobType, limit, q.owner, q.settings.Lease)
	if err != nil {
		q.stats.Incr(ctx, stats.RunError)
		return 0, fmt.Errorf("claim %s jobs: %w", jobType, err)
	}
	if len(jobs) == 0 {
		q.stats.Incr(ctx, stats.RunIdle)
		return 0, nil
	}
	logger := q.logger.With(logging.JobType(jobType))

	handler, err := q.lookupHandler(ctx, jobType)
	if err != nil {
		how := jobstore.ReleaseUnget
		if errors.Is(err, handlers.ErrNotFound) {
			how = jobstore.ReleaseRetry
			q.stats.Add(ctx, stats.RunHandlerMissing, int64(len(jobs)), stats.JobType(jobType))
			logging.WarnWithContext(logger, "no handler for job type; retrying batch later", "handler_missing",
				logging.Count(len(jobs)),
				logging.String(logging.FieldErrorHint, "register one with miniq handler set "+jobType),
			)
			err = nil
		} else {
			q.stats.Incr(ctx, stats.RunError)
			err = fmt.Errorf("load handler for %s: %w", jobType, err)
		}
		if relErr := q.release(ctx, jobIDs(jobs), how); relErr != nil {
			err = errors.Join(err, fmt.Errorf("release unhandled %s jobs: %w", jobType, relErr))
		}
		return 0, err
	}

	q.scheduler.JobsStarted(jobType, len(jobs))
	started, err := q.runner.RunJobs(ctx, jobType, jobs, q.owner, handler)
	if err != nil {
		q.scheduler.JobsStopped(jobType, len(jobs))
		q.stats.Incr(ctx, stats.RunError)
		err = fmt.Errorf("run %s jobs: %w", jobType, err)
		if relErr := q.release(ctx, jobIDs(jobs), jobstore.ReleaseRetry); relErr != nil {
			err = errors.Join(err, fmt.Errorf("release unstarted %s jobs: %w", jobType, relErr))
		}
		return 0, err
	}
	if skipped := len(jobs) - started; skipped > 0 {
		// Already in flight on this runner; their first copy reports the result.
		q.scheduler.JobsStopped(jobType, skipped)
		logger.Warn("runner skipped jobs it is already running",
			logging.Count(skipped),
			logging.String(logging.FieldEventType, "run_skipped_duplicates"),
		)
	}
	q.stats.Add(ctx, stats.RunStarted, int64(started), stats.JobType(jobType))
	q.stats.Incr(ctx, stats.RunOK)
	logger.Debug("started job batch", logging.Count(started))
	return started, nil
}

// lookupHandler returns nil when the runner serves jobType itself or no
// lookup is configured.
func (q *Queue) lookupHandler(ctx context.Context, jobType string) (*handlers.Handler, error) {
	if q.handlers == nil || q.runner.Handles(jobType) {
		return nil, nil
	}
	handler, err := q.handlers.Get(ctx, jobType)
	if err != nil {
		return nil, err
	}
	return &handler, nil
}
