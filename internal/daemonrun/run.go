package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"miniq/internal/backends"
	"miniq/internal/config"
	"miniq/internal/daemon"
	"miniq/internal/handlers"
	"miniq/internal/ids"
	"miniq/internal/jobstore"
	"miniq/internal/logging"
	"miniq/internal/preflight"
	"miniq/internal/queue"
	"miniq/internal/runner"
	"miniq/internal/scheduler"
	"miniq/internal/stats"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Register adds in-process job functions before the daemon starts.
	Register func(*runner.Local)
}

// Run starts the miniq daemon and blocks until ctx ends or SIGINT/SIGTERM
// arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	sessionID := uuid.NewString()
	logPath := filepath.Join(cfg.Paths.LogDir, "miniqd.log")
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String(logging.FieldSessionID, sessionID))

	for _, result := range preflight.Failed(preflight.Local(cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "jobs depending on this may fail"),
		)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "miniqd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := backends.OpenStore(signalCtx, cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	jrnl, err := backends.OpenJournal(signalCtx, cfg)
	if err != nil {
		logger.Error("open journal", logging.Error(err))
		return err
	}
	defer jrnl.Close()

	sysid, claim, err := resolveSysID(signalCtx, cfg, store, sessionID)
	if err != nil {
		logging.ErrorWithContext(logger, "sysid unavailable", "sysid_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "raise daemon.sysid_max or set daemon.sysid"),
		)
		return err
	}

	policy, err := scheduler.ParsePolicy(cfg.Queue.SchedulerPolicy)
	if err != nil {
		return err
	}
	sched := scheduler.New(scheduler.WithPolicy(policy), scheduler.WithLogger(logger))

	local := runner.NewLocal(
		runner.WithConcurrency(cfg.Runner.Concurrency),
		runner.WithBatchSize(cfg.Runner.BatchSize),
		runner.WithTimeout(cfg.HandlerTimeout()),
		runner.WithLogger(logger),
	)
	if opts.Register != nil {
		opts.Register(local)
	}

	q, err := queue.New(store, jrnl, local, sysid,
		queue.WithSettings(queue.SettingsFromConfig(cfg)),
		queue.WithHandlers(handlers.New(store, ids.New())),
		queue.WithScheduler(sched),
		queue.WithStats(stats.New(nil)),
		queue.WithLogger(logger),
	)
	if err != nil {
		releaseClaim(logger, store, claim)
		return fmt.Errorf("create queue: %w", err)
	}

	var daemonOpts []daemon.Option
	if claim != nil {
		daemonOpts = append(daemonOpts, daemon.WithSysIDClaim(*claim))
	}
	d, err := daemon.New(cfg, store, q, logger, daemonOpts...)
	if err != nil {
		releaseClaim(logger, store, claim)
		return fmt.Errorf("create daemon: %w", err)
	}

	logBackendSnapshot(logger, cfg, sysid)
	if err := d.Start(signalCtx); err != nil {
		releaseClaim(logger, store, claim)
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file and job store access"),
			logging.String(logging.FieldImpact, "no jobs are processed by this host"),
		)
		return err
	}

	waitErr := d.Wait()
	logger.Info("miniq daemon shutting down")
	return errors.Join(waitErr, d.Stop())
}

// resolveSysID returns the configured sysid, or claims a free one in the
// store for this session.
func resolveSysID(ctx context.Context, cfg *config.Config, store jobstore.Store, sessionID string) (string, *queue.SysIDClaim, error) {
	if sysid := strings.TrimSpace(cfg.Daemon.SysID); sysid != "" {
		return sysid, nil, nil
	}
	claim, err := queue.AcquireSysID(ctx, store, sessionID, cfg.Daemon.SysIDMax, time.Now())
	if err != nil {
		return "", nil, err
	}
	return claim.SysID, &claim, nil
}

func releaseClaim(logger *slog.Logger, store jobstore.Store, claim *queue.SysIDClaim) {
	if claim == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := queue.ReleaseSysID(ctx, store, *claim, time.Now()); err != nil {
		logger.Warn("release sysid", logging.Error(err))
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logBackendSnapshot(logger *slog.Logger, cfg *config.Config, sysid string) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("backend snapshot",
		logging.String(logging.FieldEventType, "backend_snapshot"),
		logging.String(logging.FieldOwner, sysid),
		logging.String("store_driver", cfg.Store.Driver),
		logging.String("journal_driver", cfg.Journal.Driver),
		logging.String("journal_name", cfg.Journal.Name),
		logging.String("scheduler_policy", cfg.Queue.SchedulerPolicy),
		logging.Int("runner_concurrency", cfg.Runner.Concurrency),
		logging.Duration("lease", cfg.Lease()),
	)
}
