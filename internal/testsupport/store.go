package testsupport

import (
	"context"
	"testing"
	"time"

	"miniq/internal/config"
	"miniq/internal/jobstore"
	"miniq/internal/journal"
)

// MustOpenStore opens the configured job store for tests and registers
// cleanup. Only the memory and SQLite drivers are supported.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...jobstore.Option) jobstore.Store {
	t.Helper()

	var store jobstore.Store
	switch cfg.Store.Driver {
	case config.StoreMemory:
		store = jobstore.NewMemory(opts...)
	case config.StoreSQLite:
		sqlite, err := jobstore.OpenSQLite(cfg.Store.SQLitePath, opts...)
		if err != nil {
			t.Fatalf("jobstore.OpenSQLite: %v", err)
		}
		store = sqlite
	default:
		t.Fatalf("MustOpenStore: unsupported driver %q", cfg.Store.Driver)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustOpenJournal opens the configured journal for tests and registers
// cleanup. Only the memory and file drivers are supported.
func MustOpenJournal(t testing.TB, cfg *config.Config, opts ...journal.Option) journal.Journal {
	t.Helper()

	var j journal.Journal
	switch cfg.Journal.Driver {
	case config.JournalMemory:
		j = journal.NewMemory(opts...)
	case config.JournalFile:
		file, err := journal.OpenFile(cfg.Journal.Dir, cfg.Journal.Name, opts...)
		if err != nil {
			t.Fatalf("journal.OpenFile: %v", err)
		}
		j = file
	default:
		t.Fatalf("MustOpenJournal: unsupported driver %q", cfg.Journal.Driver)
	}
	t.Cleanup(func() {
		_ = j.Close()
	})
	return j
}

// WriteRecords encodes records, writes them to j, and waits until they are
// durable.
func WriteRecords(t testing.TB, j journal.Journal, records ...journal.Record) {
	t.Helper()

	lines := make([]string, len(records))
	for i, rec := range records {
		line, err := journal.EncodeRecord(rec)
		if err != nil {
			t.Fatalf("EncodeRecord(%+v): %v", rec, err)
		}
		lines[i] = line
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Write(ctx, lines); err != nil {
		t.Fatalf("journal write: %v", err)
	}
	if err := j.Sync(ctx); err != nil {
		t.Fatalf("journal sync: %v", err)
	}
}
