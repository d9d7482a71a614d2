package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"miniq/internal/handlers"
	"miniq/internal/jobstore"
	"miniq/internal/journal"
	"miniq/internal/logging"
	"miniq/internal/runner"
	"miniq/internal/scheduler"
	"miniq/internal/stats"
)

// Runner executes claimed jobs and reports their outcomes.
type Runner interface {
	// BatchSize returns how many jobs of jobType the runner accepts now.
	BatchSize(jobType string) int
	// Handles reports whether jobType runs without a stored handler.
	Handles(jobType string) bool
	// RunJobs starts jobs asynchronously and returns how many it started;
	// results surface through DoneJobs. Skipped jobs never report a result.
	RunJobs(ctx context.Context, jobType string, jobs []jobstore.Job, owner string, handler *handlers.Handler) (int, error)
	// RunningJobIDs lists the jobs still in flight.
	RunningJobIDs() []string
	// DoneJobs drains finished results.
	DoneJobs() []runner.DoneJob
	// Stop cancels in-flight jobs and returns those that did not finish.
	Stop(ctx context.Context) []jobstore.Job
}

// HandlerLookup resolves the stored handler of a job type.
type HandlerLookup interface {
	Get(ctx context.Context, jobType string) (handlers.Handler, error)
}

// ErrNoOwner is returned by New when no sysid was supplied.
var ErrNoOwner = errors.New("queue owner id required")

// Queue is the per-daemon orchestrator.
type Queue struct {
	settings  Settings
	store     jobstore.Store
	journal   journal.Journal
	runner    Runner
	handlers  HandlerLookup
	scheduler *scheduler.Scheduler
	stats     *stats.Recorder
	logger    *slog.Logger
	now       func() time.Time
	owner     string

	mu         sync.RWMutex
	lastErr    error
	iterations int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithSettings replaces the default settings.
func WithSettings(settings Settings) Option {
	return func(q *Queue) { q.settings = settings }
}

// WithHandlers enables stored handler lookup for types the runner does not
// handle natively.
func WithHandlers(lookup HandlerLookup) Option {
	return func(q *Queue) { q.handlers = lookup }
}

// WithScheduler replaces the default scheduler.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(q *Queue) {
		if s != nil {
			q.scheduler = s
		}
	}
}

// WithStats sets the event recorder.
func WithStats(rec *stats.Recorder) Option {
	return func(q *Queue) {
		if rec != nil {
			q.stats = rec
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithClock overrides the clock used for age and retention math.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// New constructs a Queue that leases jobs as owner, the daemon's sysid.
func New(store jobstore.Store, jrnl journal.Journal, run Runner, owner string, opts ...Option) (*Queue, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	q := &Queue{
		settings:  DefaultSettings(),
		store:     store,
		journal:   jrnl,
		runner:    run,
		scheduler: scheduler.New(),
		stats:     stats.New(nil),
		logger:    logging.NewNop(),
		now:       time.Now,
		owner:     owner,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With(logging.String(logging.FieldOwner, owner))
	return q, nil
}

// Owner returns the lease owner id.
func (q *Queue) Owner() string { return q.owner }

// Scheduler returns the scheduler tracking running counts.
func (q *Queue) Scheduler() *scheduler.Scheduler { return q.scheduler }

// Stats returns the event recorder.
func (q *Queue) Stats() *stats.Recorder { return q.stats }

// LastError returns the most recent iteration error.
func (q *Queue) LastError() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.lastErr
}

// Iterations returns how many loop iterations have completed.
func (q *Queue) Iterations() int64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.iterations
}

func (q *Queue) recordIteration(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.iterations++
	if err != nil {
		q.lastErr = err
	}
}

func (q *Queue) release(ctx context.Context, ids []string, how jobstore.ReleaseHow) error {
	if len(ids) == 0 {
		return nil
	}
	return q.store.ReleaseJobs(ctx, ids, q.owner, how)
}

func jobIDs(jobs []jobstore.Job) []string {
	out := make([]string, len(jobs))
	for i, job := range jobs {
		out[i] = job.ID
	}
	return out
}
