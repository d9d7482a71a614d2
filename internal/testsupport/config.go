package testsupport

import (
	"path/filepath"
	"testing"

	"miniq/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Backends default to SQLite and the file journal inside the temp dir.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = base
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Daemon.LockPath = filepath.Join(base, "miniqd.lock")
	cfgVal.Store.SQLitePath = filepath.Join(base, "jobs.db")
	cfgVal.Journal.Dir = filepath.Join(base, "journal")
	cfgVal.Queue.PollIntervalMs = 10
	cfgVal.Queue.ReserveTimeoutMs = 1000

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithStoreDriver selects the job store backend.
func WithStoreDriver(driver string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Driver = driver
	}
}

// WithJournalDriver selects the journal backend.
func WithJournalDriver(driver string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Driver = driver
	}
}

// WithSysID pins the daemon sysid instead of acquiring one.
func WithSysID(sysid string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.SysID = sysid
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.DataDir
}
