package handlers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"miniq/internal/handlers"
	"miniq/internal/ids"
	"miniq/internal/jobstore"
	"miniq/internal/testsupport"
)

func newStore(t *testing.T) (*handlers.Store, jobstore.Store, *testsupport.Clock) {
	t.Helper()
	clock := testsupport.NewClock(time.Time{})
	jobs := jobstore.NewMemory(jobstore.WithClock(clock.Now))
	t.Cleanup(func() { _ = jobs.Close() })
	gen := ids.New(ids.WithClock(clock.Now))
	return handlers.New(jobs, gen, handlers.WithClock(clock.Now)), jobs, clock
}

func TestGetMissingHandler(t *testing.T) {
	store, _, _ := newStore(t)
	_, err := store.Get(context.Background(), "email")
	if !errors.Is(err, handlers.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetThenGet(t *testing.T) {
	store, _, clock := newStore(t)
	ctx := context.Background()
	if err := store.Set(ctx, "email", handlers.Handler{Lang: " SH ", Body: "cat >/dev/null"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(ctx, "email")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Lang != handlers.LangShell || got.Body != "cat >/dev/null" {
		t.Fatalf("unexpected handler %+v", got)
	}
	if !got.UpdatedAt.Equal(clock.Now().Truncate(time.Millisecond)) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, clock.Now())
	}
}

func TestSetReplacesAndPrunes(t *testing.T) {
	store, jobs, clock := newStore(t)
	ctx := context.Background()
	for _, body := range []string{"exit 1", "exit 2", "exit 0"} {
		if err := store.Set(ctx, "email", handlers.Handler{Lang: "sh", Body: body}); err != nil {
			t.Fatalf("Set(%q): %v", body, err)
		}
		clock.Advance(time.Second)
	}
	got, err := store.Get(ctx, "email")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Body != "exit 0" {
		t.Fatalf("newest handler not returned: %+v", got)
	}
	rows, err := jobs.GetLockedJobs(ctx, "email", jobstore.LockHandler, 10)
	if err != nil {
		t.Fatalf("GetLockedJobs: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected older handlers pruned, found %d rows", len(rows))
	}
}

func TestSetSameMillisecondNewestWins(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()
	for _, body := range []string{"first", "second"} {
		if err := store.Set(ctx, "email", handlers.Handler{Lang: "sh", Body: body}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	got, err := store.Get(ctx, "email")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Body != "second" {
		t.Fatalf("Get returned %q, want second", got.Body)
	}
}

func TestHandlerRowsAreInvisibleToQueueOperations(t *testing.T) {
	store, jobs, clock := newStore(t)
	ctx := context.Background()
	if err := store.Set(ctx, "email", handlers.Handler{Lang: "sh", Body: "true"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clock.Advance(365 * 24 * time.Hour)

	counts, err := jobs.WaitingJobCounts(ctx)
	if err != nil {
		t.Fatalf("WaitingJobCounts: %v", err)
	}
	if len(counts) != 0 {
		t.Fatalf("handler row counted as waiting: %v", counts)
	}
	claimed, err := jobs.GetJobs(ctx, "email", 10, "owner", time.Minute)
	if err != nil || len(claimed) != 0 {
		t.Fatalf("handler row claimed: %v %v", claimed, err)
	}
	if n, err := jobs.ExpireLocks(ctx); err != nil || n != 0 {
		t.Fatalf("ExpireLocks touched handler row: n=%d err=%v", n, err)
	}
	if _, err := store.Get(ctx, "email"); err != nil {
		t.Fatalf("handler lost: %v", err)
	}
}

func TestSetValidates(t *testing.T) {
	store, _, _ := newStore(t)
	cases := []struct {
		jobType string
		handler handlers.Handler
	}{
		{"", handlers.Handler{Lang: "sh", Body: "true"}},
		{"email", handlers.Handler{Body: "true"}},
		{"email", handlers.Handler{Lang: "sh", Body: "  "}},
	}
	for _, tc := range cases {
		err := store.Set(context.Background(), tc.jobType, tc.handler)
		if !errors.Is(err, handlers.ErrInvalidHandler) {
			t.Fatalf("Set(%q, %+v) = %v, want ErrInvalidHandler", tc.jobType, tc.handler, err)
		}
	}
}

func TestConcurrentWritersInOneMillisecond(t *testing.T) {
	clock := testsupport.NewClock(time.Time{})
	jobs := jobstore.NewMemory(jobstore.WithClock(clock.Now))
	t.Cleanup(func() { _ = jobs.Close() })
	ctx := context.Background()

	for _, body := range []string{"make a", "make b"} {
		writer := handlers.New(jobs, ids.New(ids.WithClock(clock.Now)), handlers.WithClock(clock.Now))
		if err := writer.Set(ctx, "build", handlers.Handler{Lang: "sh", Body: body}); err != nil {
			t.Fatalf("Set(%q): %v", body, err)
		}
	}
	got, err := handlers.New(jobs, ids.New()).Get(ctx, "build")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Body != "make a" && got.Body != "make b" {
		t.Fatalf("Get returned %q", got.Body)
	}
}
