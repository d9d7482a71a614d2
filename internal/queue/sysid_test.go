package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"miniq/internal/jobstore"
	"miniq/internal/queue"
	"miniq/internal/testsupport"
)

func TestAcquireSysIDTakesLowestFree(t *testing.T) {
	clock := testsupport.NewClock(time.Time{})
	store := jobstore.NewMemory(jobstore.WithClock(clock.Now))
	ctx := context.Background()

	a, err := queue.AcquireSysID(ctx, store, "session-a", 3, clock.Now())
	if err != nil {
		t.Fatalf("AcquireSysID a: %v", err)
	}
	b, err := queue.AcquireSysID(ctx, store, "session-b", 3, clock.Now())
	if err != nil {
		t.Fatalf("AcquireSysID b: %v", err)
	}
	if a.SysID != "1" || b.SysID != "2" {
		t.Fatalf("sysids = %q, %q; want 1, 2", a.SysID, b.SysID)
	}

	if err := queue.ReleaseSysID(ctx, store, a, clock.Now()); err != nil {
		t.Fatalf("ReleaseSysID: %v", err)
	}
	c, err := queue.AcquireSysID(ctx, store, "session-c", 3, clock.Now())
	if err != nil {
		t.Fatalf("AcquireSysID c: %v", err)
	}
	if c.SysID != "1" {
		t.Fatalf("released sysid not reused: %q", c.SysID)
	}
}

func TestAcquireSysIDExhausted(t *testing.T) {
	store := jobstore.NewMemory()
	ctx := context.Background()
	for _, session := range []string{"a", "b"} {
		if _, err := queue.AcquireSysID(ctx, store, session, 2, time.Now()); err != nil {
			t.Fatalf("AcquireSysID %s: %v", session, err)
		}
	}
	if _, err := queue.AcquireSysID(ctx, store, "c", 2, time.Now()); !errors.Is(err, queue.ErrNoSysID) {
		t.Fatalf("expected ErrNoSysID, got %v", err)
	}
}

func TestSysIDRowsStayOutOfTheQueue(t *testing.T) {
	clock := testsupport.NewClock(time.Time{})
	store := jobstore.NewMemory(jobstore.WithClock(clock.Now))
	ctx := context.Background()
	if _, err := queue.AcquireSysID(ctx, store, "session", 5, clock.Now()); err != nil {
		t.Fatalf("AcquireSysID: %v", err)
	}
	clock.Advance(365 * 24 * time.Hour)

	counts, err := store.WaitingJobCounts(ctx)
	if err != nil || len(counts) != 0 {
		t.Fatalf("sysid row visible as waiting: %v %v", counts, err)
	}
	if n, err := store.ExpireLocks(ctx); err != nil || n != 0 {
		t.Fatalf("ExpireLocks broke the sysid claim: n=%d err=%v", n, err)
	}
}

func TestAcquireSysIDBase36(t *testing.T) {
	store := jobstore.NewMemory()
	ctx := context.Background()
	var last queue.SysIDClaim
	for i := 0; i < 11; i++ {
		claim, err := queue.AcquireSysID(ctx, store, "s", 20, time.Now())
		if err != nil {
			t.Fatalf("AcquireSysID: %v", err)
		}
		last = claim
	}
	if last.SysID != "b" {
		t.Fatalf("eleventh sysid = %q, want b", last.SysID)
	}
}
