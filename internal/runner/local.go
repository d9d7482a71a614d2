package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"sync"
	"time"

	"miniq/internal/handlers"
	"miniq/internal/jobstore"
	"miniq/internal/logging"
)

var commandContext = exec.CommandContext

const (
	defaultConcurrency = 4
	defaultBatchSize   = 10
	defaultShell       = "sh"
)

// Func executes one job. Return nil for success, ErrRetry to run the job again
// later, or ErrFailed to fail it permanently. Any other error or a panic is
// reported as CodeError.
type Func func(ctx context.Context, job jobstore.Job) error

type task struct {
	job    jobstore.Job
	cancel context.CancelFunc
}

// Local runs jobs on a bounded pool of goroutines.
type Local struct {
	logger      *slog.Logger
	concurrency int
	batchSize   int
	timeout     time.Duration
	shell       string

	baseCtx   context.Context
	cancelAll context.CancelFunc
	slots     chan struct{}
	wg        sync.WaitGroup

	mu          sync.Mutex
	funcs       map[string]Func
	running     map[string]*task
	done        []DoneJob
	interrupted []jobstore.Job
	stopping    bool
}

// Option configures a Local runner.
type Option func(*Local)

// WithConcurrency bounds how many jobs run at once.
func WithConcurrency(n int) Option {
	return func(l *Local) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithBatchSize bounds how many jobs one RunJobs call should carry.
func WithBatchSize(n int) Option {
	return func(l *Local) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithTimeout limits each job's run time. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(l *Local) {
		if d >= 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithShell overrides the interpreter used for "sh" handlers.
func WithShell(shell string) Option {
	return func(l *Local) {
		if shell != "" {
			l.shell = shell
		}
	}
}

// NewLocal constructs a Local runner.
func NewLocal(opts ...Option) *Local {
	l := &Local{
		logger:      logging.NewNop(),
		concurrency: defaultConcurrency,
		batchSize:   defaultBatchSize,
		shell:       defaultShell,
		funcs:       make(map[string]Func),
		running:     make(map[string]*task),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.slots = make(chan struct{}, l.concurrency)
	l.baseCtx, l.cancelAll = context.WithCancel(context.Background())
	return l
}

// Register serves jobType with fn instead of a stored handler.
func (l *Local) Register(jobType string, fn Func) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fn == nil {
		delete(l.funcs, jobType)
		return
	}
	l.funcs[jobType] = fn
}

// Handles reports whether jobType has a registered function.
func (l *Local) Handles(jobType string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.funcs[jobType]
	return ok
}

// BatchSize returns how many jobs of jobType the runner can take right now.
func (l *Local) BatchSize(string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopping {
		return 0
	}
	free := l.concurrency - len(l.running)
	if free <= 0 {
		return 0
	}
	return min(l.batchSize, free)
}

// RunJobs starts jobs in the background and returns how many it started.
// Jobs already running are skipped and produce no second result. handler may
// be nil when jobType has a registered function.
func (l *Local) RunJobs(_ context.Context, jobType string, jobs []jobstore.Job, owner string, handler *handlers.Handler) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopping {
		return 0, ErrStopped
	}
	run, err := l.executorLocked(jobType, owner, handler)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, job := range jobs {
		if _, dup := l.running[job.ID]; dup {
			l.logger.Warn("job already running; skipping duplicate",
				logging.String(logging.FieldJobID, job.ID),
				logging.JobType(jobType),
				logging.String(logging.FieldEventType, "runner_duplicate"),
			)
			continue
		}
		var ctx context.Context
		var cancel context.CancelFunc
		if l.timeout > 0 {
			ctx, cancel = context.WithTimeout(l.baseCtx, l.timeout)
		} else {
			ctx, cancel = context.WithCancel(l.baseCtx)
		}
		t := &task{job: job, cancel: cancel}
		l.running[job.ID] = t
		l.wg.Add(1)
		started++
		go l.execute(ctx, t, run)
	}
	return started, nil
}

type executor func(ctx context.Context, job jobstore.Job) (Code, int, error)

func (l *Local) executorLocked(jobType, owner string, handler *handlers.Handler) (executor, error) {
	if fn, ok := l.funcs[jobType]; ok {
		return func(ctx context.Context, job jobstore.Job) (Code, int, error) {
			return runFunc(ctx, fn, job)
		}, nil
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, jobType)
	}
	switch handler.Lang {
	case handlers.LangShell:
		body := handler.Body
		return func(ctx context.Context, job jobstore.Job) (Code, int, error) {
			return l.runShell(ctx, body, owner, job)
		}, nil
	}
	return nil, fmt.Errorf("%w: %q for %s", ErrUnsupportedLang, handler.Lang, jobType)
}

func (l *Local) execute(ctx context.Context, t *task, run executor) {
	defer l.wg.Done()
	defer t.cancel()

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		l.finish(ctx, t, DoneJob{ID: t.job.ID, Type: t.job.Type, Code: CodeError, ExitCode: -1, Err: ctx.Err()})
		return
	}
	start := time.Now()
	code, exitCode, err := run(ctx, t.job)
	<-l.slots

	l.finish(ctx, t, DoneJob{
		ID:       t.job.ID,
		Type:     t.job.Type,
		Code:     code,
		ExitCode: exitCode,
		Err:      err,
		Elapsed:  time.Since(start),
	})
}

func (l *Local) finish(ctx context.Context, t *task, result DoneJob) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.running, t.job.ID)
	if l.stopping && errors.Is(ctx.Err(), context.Canceled) {
		l.interrupted = append(l.interrupted, jobstore.Job{ID: t.job.ID, Type: t.job.Type})
		return
	}
	if result.Code != CodeOK {
		l.logger.Debug("job finished",
			logging.String(logging.FieldJobID, result.ID),
			logging.JobType(result.Type),
			logging.String("code", string(result.Code)),
			logging.Int("exit_code", result.ExitCode),
			logging.Error(result.Err),
		)
	}
	l.done = append(l.done, result)
}

func runFunc(ctx context.Context, fn Func, job jobstore.Job) (code Code, exitCode int, err error) {
	defer func() {
		if r := recover(); r != nil {
			code, exitCode, err = CodeError, -1, fmt.Errorf("job panicked: %v", r)
		}
	}()
	err = fn(ctx, job)
	switch {
	case err == nil:
		return CodeOK, 0, nil
	case errors.Is(err, ErrRetry):
		return CodeRetry, RetryExitCode, err
	case errors.Is(err, ErrFailed):
		return CodeFailed, 1, err
	}
	return CodeError, -1, err
}

// RunningJobIDs returns the ids of jobs that have not finished, sorted.
func (l *Local) RunningJobIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.running))
	for id := range l.running {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RunningCount returns how many jobs are in flight.
func (l *Local) RunningCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.running)
}

// DoneJobs drains the finished results.
func (l *Local) DoneJobs() []DoneJob {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.done
	l.done = nil
	return out
}

// Stop cancels every running job and waits for them until ctx ends. It
// returns the jobs that did not finish on their own; their results are
// dropped. Results of jobs that finished earlier remain in DoneJobs.
func (l *Local) Stop(ctx context.Context) []jobstore.Job {
	l.mu.Lock()
	l.stopping = true
	l.mu.Unlock()

	l.cancelAll()
	waited := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		l.logger.Warn("runner stop timed out; abandoning in-flight jobs",
			logging.Count(l.RunningCount()),
			logging.String(logging.FieldEventType, "runner_stop_timeout"),
			logging.String(logging.FieldErrorHint, "jobs without context support keep running until they return"),
		)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.interrupted
	l.interrupted = nil
	for _, t := range l.running {
		out = append(out, jobstore.Job{ID: t.job.ID, Type: t.job.Type})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}
