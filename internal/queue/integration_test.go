package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"miniq/internal/config"
	"miniq/internal/handlers"
	"miniq/internal/ids"
	"miniq/internal/jobstore"
	"miniq/internal/journal"
	"miniq/internal/queue"
	"miniq/internal/runner"
	"miniq/internal/testsupport"
)

// Two daemons share one SQLite store and drain one file journal; each job
// runs exactly once when nothing crashes.
func TestTwoDaemonsShareStoreAndJournal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	gen := ids.New()
	producer := testsupport.MustOpenJournal(t, cfg)

	const total = 40
	records := make([]journal.Record, total)
	for i, id := range gen.NextN("p", total) {
		records[i] = journal.Record{ID: id, Type: "count", Payload: id}
	}
	testsupport.WriteRecords(t, producer, records...)

	var mu sync.Mutex
	seen := make(map[string]int)
	count := func(_ context.Context, job jobstore.Job) error {
		mu.Lock()
		seen[job.ID]++
		mu.Unlock()
		return nil
	}

	settings := queue.SettingsFromConfig(cfg)
	settings.IngestBatch = 7
	settings.PollInterval = time.Millisecond

	var queues []*queue.Queue
	var stores []jobstore.Store
	for i, owner := range []string{"1", "2"} {
		store := testsupport.MustOpenStore(t, cfg)
		stores = append(stores, store)
		jrnl := producer
		if i > 0 {
			// The file journal admits one consumer; the second daemon only runs jobs.
			jrnl = journal.NewMemory()
		}
		local := runner.NewLocal(runner.WithConcurrency(3), runner.WithBatchSize(4))
		local.Register("count", count)
		q, err := queue.New(store, jrnl, local, owner, queue.WithSettings(settings))
		if err != nil {
			t.Fatalf("queue.New: %v", err)
		}
		queues = append(queues, q)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	for {
		for _, q := range queues {
			if _, err := q.RunIteration(ctx); err != nil {
				t.Fatalf("RunIteration(%s): %v", q.Owner(), err)
			}
		}
		done, err := stores[0].GetLockedJobs(ctx, "", jobstore.LockDone, total+1)
		if err != nil {
			t.Fatalf("GetLockedJobs: %v", err)
		}
		if len(done) == total {
			break
		}
		if ctx.Err() != nil {
			t.Fatalf("timed out with %d/%d archived", len(done), total)
		}
		time.Sleep(2 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != total {
		t.Fatalf("ran %d distinct jobs, want %d", len(seen), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("job %s ran %d times", id, n)
		}
	}
}

func TestStoredShellHandlerEndToEnd(t *testing.T) {
	requireShell(t)
	cfg := testsupport.NewConfig(t, testsupport.WithStoreDriver(config.StoreMemory), testsupport.WithJournalDriver(config.JournalMemory))
	store := testsupport.MustOpenStore(t, cfg)
	jrnl := testsupport.MustOpenJournal(t, cfg)
	gen := ids.New()

	handlerStore := handlers.New(store, gen)
	ctx := context.Background()
	if err := handlerStore.Set(ctx, "sh", handlers.Handler{Lang: handlers.LangShell, Body: `test "$(cat)" = ok || exit 75`}); err != nil {
		t.Fatalf("Set handler: %v", err)
	}
	ok, retry := gen.Next("p"), gen.Next("p")
	testsupport.WriteRecords(t, jrnl,
		journal.Record{ID: ok, Type: "sh", Payload: "ok"},
		journal.Record{ID: retry, Type: "sh", Payload: "nope"},
	)

	local := runner.NewLocal()
	q, err := queue.New(store, jrnl, local, "1", queue.WithHandlers(handlerStore), queue.WithSettings(queue.SettingsFromConfig(cfg)))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	if _, err := q.RunIteration(ctx); err != nil {
		t.Fatalf("RunIteration: %v", err)
	}
	deadline := time.Now().Add(10 * time.Second)
	for local.RunningCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := q.HandleDoneJobs(ctx); err != nil {
		t.Fatalf("HandleDoneJobs: %v", err)
	}

	done, err := store.GetLockedJobs(ctx, "sh", jobstore.LockDone, 10)
	if err != nil {
		t.Fatalf("GetLockedJobs: %v", err)
	}
	if len(done) != 1 || done[0].ID != ok {
		t.Fatalf("archived = %+v, want only %s", done, ok)
	}
	rows, err := store.ExpireJobs(ctx, "sh", jobstore.LockNone, time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("ExpireJobs: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != retry {
		t.Fatalf("retried job should be waiting again, got %+v", rows)
	}
}
