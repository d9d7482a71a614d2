package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"miniq/internal/jobstore"
	"miniq/internal/logging"
	"miniq/internal/stats"
)

// RenewLocks extends the leases of every job the runner still holds.
func (q *Queue) RenewLocks(ctx context.Context) error {
	running := q.runner.RunningJobIDs()
	if len(running) > 0 {
		if err := q.store.RenewLocks(ctx, running, q.owner, q.settings.Lease); err != nil {
			q.stats.Incr(ctx, stats.RenewError)
			return fmt.Errorf("renew %d leases: %w", len(running), err)
		}
	}
	q.stats.Incr(ctx, stats.RenewOK)
	q.stats.Add(ctx, stats.RenewJobs, int64(len(running)))
	return nil
}

// ExpireLocks breaks stale leases so orphaned jobs become runnable again.
func (q *Queue) ExpireLocks(ctx context.Context) error {
	n, err := q.store.ExpireLocks(ctx)
	if err != nil {
		q.stats.Incr(ctx, stats.ExpireLocksError)
		return fmt.Errorf("expire stale locks: %w", err)
	}
	q.stats.Incr(ctx, stats.ExpireLocksOK)
	q.stats.Add(ctx, stats.ExpireLocksJobs, n)
	if n > 0 {
		q.logger.Info("recovered jobs with stale leases", logging.Count(int(n)))
	}
	return nil
}

// ExpireJobs purges archived and abandoned rows past the retention window and
// abandons waiting rows that were never claimed within AbandonAfter. Each class
// removes at most ExpireLimit rows per call.
func (q *Queue) ExpireJobs(ctx context.Context) error {
	now := q.now()
	retention := now.Add(-q.settings.DoneRetention)
	limit := q.settings.ExpireLimit

	var errs []error
	var purged int
	// Archived dt carries the completion time plus DoneOffsetMs.
	doneCutoff := time.UnixMilli(retention.UnixMilli() + jobstore.DoneOffsetMs)
	if removed, err := q.store.ExpireJobs(ctx, "", jobstore.LockDone, doneCutoff, limit); err != nil {
		errs = append(errs, fmt.Errorf("purge archived jobs: %w", err))
	} else {
		purged += len(removed)
	}
	if removed, err := q.store.ExpireJobs(ctx, "", jobstore.LockAbandoned, retention, limit); err != nil {
		errs = append(errs, fmt.Errorf("purge abandoned jobs: %w", err))
	} else {
		purged += len(removed)
	}
	stale, err := q.store.ExpireJobs(ctx, "", jobstore.LockNone, now.Add(-q.settings.AbandonAfter), limit)
	if err != nil {
		errs = append(errs, fmt.Errorf("abandon unclaimed jobs: %w", err))
	}

	q.stats.Add(ctx, stats.ExpireJobsPurged, int64(purged))
	q.stats.Add(ctx, stats.ExpireJobsAbandoned, int64(len(stale)))
	if len(stale) > 0 {
		sample := make([]string, 0, 5)
		for _, job := range stale[:min(len(stale), 5)] {
			sample = append(sample, job.ID)
		}
		logging.WarnWithContext(q.logger, "deleted jobs never claimed within the abandon window", "jobs_abandoned_unclaimed",
			logging.Count(len(stale)),
			logging.Any("sample_ids", sample),
			logging.String(logging.FieldErrorHint, "register a handler or runner for these job types"),
			logging.String(logging.FieldImpact, "the jobs were removed without running"),
		)
	}
	if purged > 0 {
		q.logger.Debug("purged expired jobs", logging.Count(purged))
	}
	if err := errors.Join(errs...); err != nil {
		q.stats.Incr(ctx, stats.ExpireJobsError)
		return err
	}
	q.stats.Incr(ctx, stats.ExpireJobsOK)
	return nil
}

// Housekeeper runs the housekeeping steps on cron "@every" schedules.
type Housekeeper struct {
	queue  *Queue
	cron   *cron.Cron
	logger *slog.Logger
}

// NewHousekeeper schedules q's housekeeping steps. Steps never overlap with
// themselves; a failed step is logged and retried on its next tick.
func NewHousekeeper(q *Queue) (*Housekeeper, error) {
	logger := logging.NewComponentLogger(q.logger, "housekeeping")
	adapter := cronLogger{logger: logger}
	h := &Housekeeper{
		queue:  q,
		logger: logger,
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
	}
	steps := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{"renew_locks", q.settings.RenewInterval, q.RenewLocks},
		{"expire_locks", q.settings.ExpireLocksInterval, q.ExpireLocks},
		{"expire_jobs", q.settings.ExpireJobsInterval, q.ExpireJobs},
	}
	for _, step := range steps {
		if step.interval <= 0 {
			continue
		}
		spec := "@every " + step.interval.String()
		if _, err := h.cron.AddFunc(spec, func() { h.runStep(step.name, step.run) }); err != nil {
			return nil, fmt.Errorf("schedule %s (%s): %w", step.name, spec, err)
		}
	}
	return h, nil
}

func (h *Housekeeper) runStep(name string, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.queue.settings.Lease)
	defer cancel()
	if err := run(ctx); err != nil {
		logging.WarnWithContext(h.logger, "housekeeping step failed", "housekeeping_failed",
			logging.String(logging.FieldPhase, name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job store connectivity"),
			logging.String(logging.FieldImpact, "retried on the next tick"),
		)
	}
}

// Run starts the schedule and blocks until ctx ends, then waits for running
// steps to finish.
func (h *Housekeeper) Run(ctx context.Context) error {
	h.cron.Start()
	<-ctx.Done()
	<-h.cron.Stop().Done()
	return nil
}

// Entries reports how many steps are scheduled.
func (h *Housekeeper) Entries() int {
	return len(h.cron.Entries())
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{logging.Error(err)}, keysAndValues...)...)
}
