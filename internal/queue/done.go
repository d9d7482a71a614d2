package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"miniq/internal/ids"
	"miniq/internal/jobstore"
	"miniq/internal/logging"
	"miniq/internal/runner"
	"miniq/internal/stats"
)

// HandleDoneJobs releases every result the runner reports. ok and failed
// results are archived; retry and error results are retried unless the job
// is older than the maximum retry duration, in which case it is abandoned.
// Running counts are decremented before any release is attempted.
func (q *Queue) HandleDoneJobs(ctx context.Context) (int, error) {
	done := q.runner.DoneJobs()
	if len(done) == 0 {
		return 0, nil
	}
	start := time.Now()
	defer func() { q.stats.Observe(ctx, "done", time.Since(start)) }()

	q.jobsStopped(done)

	now := q.now()
	var archive, retry, abandon []string
	for _, res := range done {
		switch {
		case res.Code.Terminal():
			archive = append(archive, res.ID)
		case q.retryExhausted(res.ID, now):
			abandon = append(abandon, res.ID)
			logging.WarnWithContext(q.logger, "abandoning job past max retry duration", "job_abandoned",
				logging.String(logging.FieldJobID, res.ID),
				logging.JobType(res.Type),
				logging.String("code", string(res.Code)),
				logging.Error(res.Err),
				logging.String(logging.FieldErrorHint, "inspect with miniq jobs --lock __abandoned"),
				logging.String(logging.FieldImpact, "job will not run again"),
			)
		default:
			retry = append(retry, res.ID)
		}
	}

	var errs []error
	if err := q.release(ctx, archive, jobstore.ReleaseArchive); err != nil {
		errs = append(errs, fmt.Errorf("archive %d jobs: %w", len(archive), err))
	} else {
		q.stats.Add(ctx, stats.DoneArchived, int64(len(archive)))
	}
	if err := q.release(ctx, retry, jobstore.ReleaseRetry); err != nil {
		errs = append(errs, fmt.Errorf("retry %d jobs: %w", len(retry), err))
	} else {
		q.stats.Add(ctx, stats.DoneRetried, int64(len(retry)))
	}
	if err := q.release(ctx, abandon, jobstore.ReleaseAbandon); err != nil {
		errs = append(errs, fmt.Errorf("abandon %d jobs: %w", len(abandon), err))
	} else {
		q.stats.Add(ctx, stats.DoneAbandoned, int64(len(abandon)))
	}
	if err := errors.Join(errs...); err != nil {
		q.stats.Incr(ctx, stats.DoneError)
		return len(done), err
	}
	q.stats.Incr(ctx, stats.DoneOK)
	return len(done), nil
}

// retryExhausted reports whether the job's id says it was created longer ago
// than the maximum retry duration. Ids without a timestamp never expire.
func (q *Queue) retryExhausted(id string, now time.Time) bool {
	if q.settings.MaxRetry <= 0 {
		return false
	}
	created, err := ids.Timestamp(id)
	if err != nil {
		return false
	}
	return now.Sub(created) > q.settings.MaxRetry
}

func (q *Queue) jobsStopped(done []runner.DoneJob) {
	perType := make(map[string]int)
	for _, res := range done {
		perType[res.Type]++
	}
	types := make([]string, 0, len(perType))
	for jobType := range perType {
		types = append(types, jobType)
	}
	sort.Strings(types)
	for _, jobType := range types {
		q.scheduler.JobsStopped(jobType, perType[jobType])
	}
}
