package scheduler

import (
	"log/slog"
	"maps"
	"sync"
	"time"

	"miniq/internal/logging"
)

const defaultGCInterval = 10 * time.Minute

// Scheduler selects job types through a Policy and tracks running counts.
// It is safe for concurrent use.
type Scheduler struct {
	mu         sync.Mutex
	policy     Policy
	logger     *slog.Logger
	now        func() time.Time
	gcInterval time.Duration
	lastGC     time.Time
	running    map[string]int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPolicy replaces the default Random policy.
func WithPolicy(policy Policy) Option {
	return func(s *Scheduler) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithLogger sets the logger used to report ledger undercounts.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock that paces garbage collection.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithGCInterval sets how often zero-count ledger entries are dropped.
func WithGCInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.gcInterval = interval
		}
	}
}

// New constructs a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		policy:     Random{},
		logger:     logging.NewNop(),
		now:        time.Now,
		gcInterval: defaultGCInterval,
		running:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastGC = s.now()
	return s
}

// Policy returns the active selection policy.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// SelectJobType picks a type with waiting jobs. It reports false when no type
// has a positive count.
func (s *Scheduler) SelectJobType(waiting map[string]int) (string, bool) {
	candidates := make(map[string]int, len(waiting))
	for jobType, count := range waiting {
		if count > 0 {
			candidates[jobType] = count
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	s.mu.Lock()
	running := maps.Clone(s.running)
	s.mu.Unlock()
	return s.policy.Select(candidates, running), true
}

// JobsStarted records count jobs of jobType handed to the runner.
func (s *Scheduler) JobsStarted(jobType string, count int) {
	if count <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[jobType] += count
	s.maybeGC()
}

// JobsStopped records count jobs of jobType leaving the runner. The ledger
// never goes negative; an undercount is logged and clamped.
func (s *Scheduler) JobsStopped(jobType string, count int) {
	if count <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.running[jobType]
	if count > current {
		s.logger.Warn("running count undercount",
			logging.String(logging.FieldEventType, "scheduler_undercount"),
			logging.JobType(jobType),
			logging.Int("running", current),
			logging.Int("stopped", count),
			logging.String(logging.FieldErrorHint, "jobs stopped that were never recorded as started"),
		)
		count = current
	}
	s.running[jobType] = current - count
	s.maybeGC()
}

// RunningCount returns the running count for jobType.
func (s *Scheduler) RunningCount(jobType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[jobType]
}

// RunningCounts returns a copy of the positive running counts.
func (s *Scheduler) RunningCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.running))
	for jobType, count := range s.running {
		if count > 0 {
			out[jobType] = count
		}
	}
	return out
}

// TotalRunning sums the ledger.
func (s *Scheduler) TotalRunning() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, count := range s.running {
		total += count
	}
	return total
}

// ledgerSize reports entries including zero counts awaiting collection.
func (s *Scheduler) ledgerSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *Scheduler) maybeGC() {
	now := s.now()
	if now.Sub(s.lastGC) < s.gcInterval {
		return
	}
	s.lastGC = now
	maps.DeleteFunc(s.running, func(_ string, count int) bool { return count == 0 })
}
