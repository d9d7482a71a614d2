package daemon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"miniq/internal/config"
	"miniq/internal/daemon"
	"miniq/internal/ids"
	"miniq/internal/jobstore"
	"miniq/internal/journal"
	"miniq/internal/logging"
	"miniq/internal/queue"
	"miniq/internal/runner"
	"miniq/internal/stats"
	"miniq/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	store   jobstore.Store
	journal journal.Journal
	local   *runner.Local
	queue   *queue.Queue
}

func newFixture(t *testing.T, cfg *config.Config, owner string) *fixture {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	jrnl := testsupport.MustOpenJournal(t, cfg)
	local := runner.NewLocal(runner.WithConcurrency(2))
	q, err := queue.New(store, jrnl, local, owner, queue.WithSettings(queue.SettingsFromConfig(cfg)))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	return &fixture{cfg: cfg, store: store, journal: jrnl, local: local, queue: q}
}

func memoryConfig(t *testing.T) *config.Config {
	return testsupport.NewConfig(t,
		testsupport.WithStoreDriver(config.StoreMemory),
		testsupport.WithJournalDriver(config.JournalMemory),
	)
}

func newDaemon(t *testing.T, f *fixture, opts ...daemon.Option) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(f.cfg, f.store, f.queue, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t, memoryConfig(t), "1")
	d := newDaemon(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.SysID != "1" {
		t.Fatalf("sysid = %q, want 1", status.SysID)
	}
	if status.LockFilePath != f.cfg.Daemon.LockPath {
		t.Fatalf("lock path = %q, want %q", status.LockFilePath, f.cfg.Daemon.LockPath)
	}

	if err := d.Start(ctx); !errors.Is(err, daemon.ErrRunning) {
		t.Fatalf("second Start = %v, want ErrRunning", err)
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestDaemonLockExcludesSecondInstance(t *testing.T) {
	cfg := memoryConfig(t)
	first := newDaemon(t, newFixture(t, cfg, "1"))
	second := newDaemon(t, newFixture(t, cfg, "2"))

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); !errors.Is(err, daemon.ErrLocked) {
		t.Fatalf("second Start = %v, want ErrLocked", err)
	}
	if err := first.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start after release: %v", err)
	}
}

func TestDaemonProcessesJournal(t *testing.T) {
	f := newFixture(t, memoryConfig(t), "1")
	f.local.Register("noop", func(context.Context, jobstore.Job) error { return nil })

	gen := ids.New()
	const total = 5
	records := make([]journal.Record, total)
	for i, id := range gen.NextN("p", total) {
		records[i] = journal.Record{ID: id, Type: "noop", Payload: "{}"}
	}
	testsupport.WriteRecords(t, f.journal, records...)

	d := newDaemon(t, f)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "jobs archived", func() bool {
		done, err := f.store.GetLockedJobs(ctx, "noop", jobstore.LockDone, total+1)
		return err == nil && len(done) == total
	})
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got := status.Stats[stats.IngestJobs]; got != total {
		t.Fatalf("%s = %d, want %d", stats.IngestJobs, got, total)
	}
	if status.Iterations == 0 {
		t.Fatal("expected loop iterations to be recorded")
	}
	if len(status.Waiting) != 0 {
		t.Fatalf("waiting = %v, want none", status.Waiting)
	}
}

func TestDaemonStopReturnsInterruptedJobs(t *testing.T) {
	f := newFixture(t, memoryConfig(t), "1")
	f.local.Register("block", func(ctx context.Context, _ jobstore.Job) error {
		<-ctx.Done()
		return ctx.Err()
	})
	id := ids.New().Next("p")
	testsupport.WriteRecords(t, f.journal, journal.Record{ID: id, Type: "block", Payload: "x"})

	d := newDaemon(t, f)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "job leased", func() bool {
		leased, err := f.store.GetLockedJobs(ctx, "block", "1", 1)
		return err == nil && len(leased) == 1
	})
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	waitFor(t, "job waiting again", func() bool {
		waiting, err := f.store.WaitingJobCounts(ctx)
		return err == nil && waiting["block"] == 1
	})
	if n := f.queue.Scheduler().TotalRunning(); n != 0 {
		t.Fatalf("scheduler still counts %d running", n)
	}
}

func TestDaemonFreesSysIDClaim(t *testing.T) {
	cfg := memoryConfig(t)
	f := newFixture(t, cfg, "1")
	ctx := context.Background()

	claim, err := queue.AcquireSysID(ctx, f.store, "session-a", cfg.Daemon.SysIDMax, time.Now())
	if err != nil {
		t.Fatalf("AcquireSysID: %v", err)
	}
	d := newDaemon(t, f, daemon.WithSysIDClaim(claim))
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	again, err := queue.AcquireSysID(ctx, f.store, "session-b", cfg.Daemon.SysIDMax, time.Now())
	if err != nil {
		t.Fatalf("AcquireSysID after release: %v", err)
	}
	if again.SysID != claim.SysID {
		t.Fatalf("reacquired sysid %q, want %q", again.SysID, claim.SysID)
	}
}

func TestDaemonStopsWhenContextEnds(t *testing.T) {
	f := newFixture(t, memoryConfig(t), "1")
	d := newDaemon(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	waited := make(chan error, 1)
	go func() { waited <- d.Wait() }()
	select {
	case err := <-waited:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}
