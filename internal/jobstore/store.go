package jobstore

import (
	"context"
	"sort"
	"time"
)

// Store is the job table contract shared by every backend.
type Store interface {
	// AddJobs inserts jobs. Jobs without an id or type are returned as rejects
	// and not inserted. A zero Dt means "now". Ids that already exist produce a
	// *DuplicateError after the remaining rows have been inserted.
	AddJobs(ctx context.Context, jobs []Job) (rejects []Job, err error)
	// WaitingJobCounts counts eligible jobs (lock "" and dt <= now) by type.
	WaitingJobCounts(ctx context.Context) (map[string]int, error)
	// GetJobs claims up to limit eligible jobs of jobType for owner until
	// now+lease and returns the claimed rows, oldest first.
	GetJobs(ctx context.Context, jobType string, limit int, owner string, lease time.Duration) ([]Job, error)
	// GetLockedJobs lists rows held by lock, newest dt first. An empty
	// jobType matches every type.
	GetLockedJobs(ctx context.Context, jobType, lock string, limit int) ([]Job, error)
	// RenewLocks extends the lease of the ids still held by owner. Rows no
	// longer held by owner are skipped.
	RenewLocks(ctx context.Context, ids []string, owner string, lease time.Duration) error
	// ReleaseJobs applies how to the ids still held by owner. Rows no longer
	// held by owner are skipped.
	ReleaseJobs(ctx context.Context, ids []string, owner string, how ReleaseHow) error
	// ExpireLocks breaks every stale daemon lease and returns how many rows
	// became waiting again.
	ExpireLocks(ctx context.Context) (int64, error)
	// ExpireJobs deletes up to limit rows held by lock (and of jobType, when
	// not empty) whose dt is before cutoff, and returns them without payload.
	ExpireJobs(ctx context.Context, jobType, lock string, cutoff time.Time, limit int) ([]Job, error)
	// Close releases the backend.
	Close() error
}

// WaitingJobTypes returns the sorted types that currently have eligible jobs.
func WaitingJobTypes(ctx context.Context, store Store) ([]string, error) {
	counts, err := store.WaitingJobCounts(ctx)
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(counts))
	for jobType, count := range counts {
		if count > 0 {
			types = append(types, jobType)
		}
	}
	sort.Strings(types)
	return types, nil
}

const defaultRetryDelay = 30 * time.Second

// Options holds settings shared by every backend.
type Options struct {
	Now        func() time.Time
	RetryDelay time.Duration
}

// Option configures a backend.
type Option func(*Options)

// WithClock overrides the clock used for every dt computation.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithRetryDelay sets the backoff applied by ReleaseRetry.
func WithRetryDelay(delay time.Duration) Option {
	return func(o *Options) {
		if delay >= 0 {
			o.RetryDelay = delay
		}
	}
}

func buildOptions(opts []Option) Options {
	o := Options{Now: time.Now, RetryDelay: defaultRetryDelay}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// splitAdmissible separates rows that can be inserted from rejects and fills
// in the default dt.
func splitAdmissible(jobs []Job, now time.Time) (admit, rejects []Job) {
	admit = make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job.ID == "" || job.Type == "" {
			rejects = append(rejects, job)
			continue
		}
		if job.Dt == 0 {
			job.Dt = now.UnixMilli()
		}
		admit = append(admit, job)
	}
	return admit, rejects
}

func sortOldestFirst(jobs []Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].Dt != jobs[k].Dt {
			return jobs[i].Dt < jobs[k].Dt
		}
		return jobs[i].ID < jobs[k].ID
	})
}

func sortNewestFirst(jobs []Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].Dt != jobs[k].Dt {
			return jobs[i].Dt > jobs[k].Dt
		}
		return jobs[i].ID > jobs[k].ID
	})
}
