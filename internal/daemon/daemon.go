package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"miniq/internal/config"
	"miniq/internal/jobstore"
	"miniq/internal/logging"
	"miniq/internal/queue"
)

const defaultShutdownTimeout = 30 * time.Second

var (
	// ErrRunning is returned by Start when the daemon is already running.
	ErrRunning = errors.New("daemon already running")
	// ErrLocked is returned by Start when another process holds the lock.
	ErrLocked = errors.New("another miniq daemon instance is already running")
)

// Daemon runs one queue and its housekeeping under a single-instance lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  jobstore.Store
	queue  *queue.Queue
	claim  *queue.SysIDClaim
	now    func() time.Time

	shutdownTimeout time.Duration

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	started time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	SysID         string
	StartedAt     time.Time
	LockFilePath  string
	Iterations    int64
	LastError     string
	Waiting       map[string]int
	RunningCounts map[string]int
	Stats         map[string]int64
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithSysIDClaim hands the daemon the sysid claim it must free on shutdown.
func WithSysIDClaim(claim queue.SysIDClaim) Option {
	return func(d *Daemon) {
		d.claim = &claim
	}
}

// WithShutdownTimeout bounds how long Stop spends returning jobs.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(d *Daemon) {
		if timeout > 0 {
			d.shutdownTimeout = timeout
		}
	}
}

// WithClock overrides the clock used when freeing the sysid.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) {
		if now != nil {
			d.now = now
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store jobstore.Store, q *queue.Queue, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || q == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, queue, and logger")
	}

	lockPath := cfg.Daemon.LockPath
	if lockPath == "" {
		lockPath = filepath.Join(cfg.Paths.DataDir, "miniqd.lock")
	}
	d := &Daemon{
		cfg:             cfg,
		logger:          logging.NewComponentLogger(logger, "daemon"),
		store:           store,
		queue:           q,
		now:             time.Now,
		shutdownTimeout: defaultShutdownTimeout,
		lockPath:        lockPath,
		lock:            flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock and launches the queue loop and the
// housekeeping schedule.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrRunning
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}

	housekeeper, err := queue.NewHousekeeper(d.queue)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("schedule housekeeping: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		err := d.queue.Run(groupCtx, queue.Budget{})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		return housekeeper.Run(groupCtx)
	})

	d.cancel = cancel
	d.group = group
	d.started = d.now()
	d.running = true
	d.logger.Info("miniq daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Int("housekeeping_steps", housekeeper.Entries()),
	)
	return nil
}

// Wait blocks until the queue loop and housekeeping exit, which happens when
// the context passed to Start ends or Stop is called.
func (d *Daemon) Wait() error {
	d.mu.Lock()
	group := d.group
	d.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Stop halts background processing, hands interrupted jobs back to the
// store, frees the sysid claim, and releases the daemon lock.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}

	var errs []error
	d.cancel()
	if err := d.group.Wait(); err != nil {
		errs = append(errs, fmt.Errorf("background loop: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout)
	defer cancel()
	if err := d.queue.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("queue shutdown: %w", err))
	}
	if d.claim != nil {
		if err := queue.ReleaseSysID(ctx, d.store, *d.claim, d.now()); err != nil {
			errs = append(errs, err)
		} else {
			d.logger.Info("sysid released",
				logging.String(logging.FieldOwner, d.claim.SysID),
				logging.String(logging.FieldSessionID, d.claim.Session),
			)
		}
		d.claim = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}

	d.cancel = nil
	d.group = nil
	d.running = false
	err := errors.Join(errs...)
	if err != nil {
		logging.WarnWithContext(d.logger, "miniq daemon stopped with errors", "daemon_stop_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job store connectivity"),
			logging.String(logging.FieldImpact, "leased jobs return to the queue once their locks expire"),
		)
		return err
	}
	d.logger.Info("miniq daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return nil
}

// Close stops the daemon. The caller keeps ownership of the store.
func (d *Daemon) Close() error {
	return d.Stop()
}

// LockPath returns the path of the single-instance lock file.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Status returns the current daemon status. Waiting counts come from the
// store; an error reading them leaves the rest of the status intact.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	d.mu.Lock()
	running := d.running
	started := d.started
	d.mu.Unlock()

	status := Status{
		Running:       running,
		SysID:         d.queue.Owner(),
		StartedAt:     started,
		LockFilePath:  d.lockPath,
		Iterations:    d.queue.Iterations(),
		RunningCounts: d.queue.Scheduler().RunningCounts(),
		Stats:         d.queue.Stats().Snapshot(),
	}
	if err := d.queue.LastError(); err != nil {
		status.LastError = err.Error()
	}
	waiting, err := d.store.WaitingJobCounts(ctx)
	if err != nil {
		return status, fmt.Errorf("waiting job counts: %w", err)
	}
	status.Waiting = waiting
	return status, nil
}
