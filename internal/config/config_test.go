package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"miniq/internal/config"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("MINIQ_POSTGRES_URL", "")
	t.Setenv("MINIQ_REDIS_ADDR", "")
	t.Chdir(t.TempDir())
	return home
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	home := isolateEnv(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(home, ".config", "miniq", "config.toml"); resolved != want {
		t.Fatalf("resolved = %q, want %q", resolved, want)
	}

	dataDir := filepath.Join(home, ".local", "share", "miniq")
	if cfg.Paths.DataDir != dataDir {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Store.SQLitePath != filepath.Join(dataDir, "jobs.db") {
		t.Fatalf("unexpected sqlite path: %q", cfg.Store.SQLitePath)
	}
	if cfg.Journal.Dir != filepath.Join(dataDir, "journal") {
		t.Fatalf("unexpected journal dir: %q", cfg.Journal.Dir)
	}
	if cfg.Daemon.LockPath != filepath.Join(dataDir, "miniqd.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.Daemon.LockPath)
	}
	if cfg.Paths.LogDir != filepath.Join(dataDir, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Store.Driver != config.StoreSQLite || cfg.Journal.Driver != config.JournalFile {
		t.Fatalf("unexpected drivers: %q/%q", cfg.Store.Driver, cfg.Journal.Driver)
	}
	if cfg.Queue.SchedulerPolicy != "random" {
		t.Fatalf("unexpected scheduler policy: %q", cfg.Queue.SchedulerPolicy)
	}
	if got := cfg.RetryDelay().Seconds(); got != 30 {
		t.Fatalf("RetryDelay = %vs, want 30s", got)
	}
	if cfg.Lease() <= 0 || cfg.PollInterval() <= 0 || cfg.ReserveTimeout() <= 0 {
		t.Fatal("expected positive durations")
	}
}

func TestLoadFallsBackToProjectFile(t *testing.T) {
	isolateEnv(t)
	if err := os.WriteFile("miniq.toml", []byte("[queue]\ningest_batch = 7\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || filepath.Base(resolved) != "miniq.toml" {
		t.Fatalf("expected project config, got %q exists=%v", resolved, exists)
	}
	if cfg.Queue.IngestBatch != 7 {
		t.Fatalf("IngestBatch = %d, want 7", cfg.Queue.IngestBatch)
	}
}

func TestLoadCustomPathOverrides(t *testing.T) {
	isolateEnv(t)
	dataDir := t.TempDir()
	path := writeConfig(t, `
[paths]
data_dir = "`+dataDir+`"

[store]
driver = "Memory"

[journal]
driver = "memory"
name = "orders"

[queue]
scheduler_policy = " FAIR "

[logging]
format = "JSON"
level = "DEBUG"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution %q exists=%v", resolved, exists)
	}
	if cfg.Store.Driver != config.StoreMemory || cfg.Journal.Driver != config.JournalMemory {
		t.Fatalf("drivers not normalized: %q/%q", cfg.Store.Driver, cfg.Journal.Driver)
	}
	if cfg.Journal.Name != "orders" {
		t.Fatalf("journal name = %q", cfg.Journal.Name)
	}
	if cfg.Queue.SchedulerPolicy != "fair" {
		t.Fatalf("policy = %q", cfg.Queue.SchedulerPolicy)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}
	if cfg.Paths.LogDir != filepath.Join(dataDir, "logs") {
		t.Fatalf("log dir = %q", cfg.Paths.LogDir)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, "[queue]\nbogus = 1\n")
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to fail")
	}
}

func TestPostgresURLFromEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MINIQ_POSTGRES_URL", "postgres://miniq@localhost/miniq")
	path := writeConfig(t, "[store]\ndriver = \"postgres\"\n")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Store.PostgresURL != "postgres://miniq@localhost/miniq" {
		t.Fatalf("postgres url = %q", cfg.Store.PostgresURL)
	}
}

func TestRedisWaitAOFDefaultsOff(t *testing.T) {
	isolateEnv(t)
	cfg, _, _, err := config.Load(writeConfig(t, "[journal]\ndriver = \"redis\"\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Journal.RedisWaitAOF {
		t.Fatal("redis_wait_aof should default to false")
	}
	cfg, _, _, err = config.Load(writeConfig(t, "[journal]\ndriver = \"redis\"\nredis_wait_aof = true\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Journal.RedisWaitAOF {
		t.Fatal("redis_wait_aof = true was not applied")
	}
}

func TestRedisAddrFromEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MINIQ_REDIS_ADDR", "redis.internal:6380")
	path := writeConfig(t, "[journal]\ndriver = \"redis\"\n")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Journal.RedisAddr != "redis.internal:6380" {
		t.Fatalf("redis addr = %q", cfg.Journal.RedisAddr)
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"postgres without url", func(c *config.Config) { c.Store.Driver = config.StorePostgres }, "store.postgres_url"},
		{"unknown store", func(c *config.Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"unknown journal", func(c *config.Config) { c.Journal.Driver = "kafka" }, "journal.driver"},
		{"redis without addr", func(c *config.Config) {
			c.Journal.Driver = config.JournalRedis
			c.Journal.RedisAddr = ""
		}, "journal.redis_addr"},
		{"lease shorter than renew", func(c *config.Config) {
			c.Queue.LeaseSeconds = 10
			c.Housekeeping.RenewIntervalSeconds = 10
		}, "queue.lease_seconds must be greater"},
		{"zero batch", func(c *config.Config) { c.Queue.IngestBatch = 0 }, "queue.ingest_batch"},
		{"negative retry", func(c *config.Config) { c.Queue.RetryDelaySeconds = -1 }, "queue.retry_delay_seconds"},
		{"unknown policy", func(c *config.Config) { c.Queue.SchedulerPolicy = "lottery" }, "queue.scheduler_policy"},
		{"zero concurrency", func(c *config.Config) { c.Runner.Concurrency = 0 }, "runner.concurrency"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, config.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestSampleConfigMatchesSchema(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config should load cleanly: exists=%v err=%v", exists, err)
	}

	var decoded map[string]any
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	for _, section := range []string{"paths", "daemon", "store", "journal", "queue", "housekeeping", "runner", "logging"} {
		if _, ok := decoded[section]; !ok {
			t.Fatalf("sample config missing [%s]", section)
		}
	}
}

func TestEnsureDirectories(t *testing.T) {
	isolateEnv(t)
	base := t.TempDir()
	path := writeConfig(t, "[paths]\ndata_dir = \""+filepath.Join(base, "data")+"\"\n")
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Journal.Dir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestEncodeRoundTripsThroughLoad(t *testing.T) {
	isolateEnv(t)
	cfg := config.Default()
	cfg.Runner.Concurrency = 9
	text, err := config.Encode(&cfg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	loaded, _, _, err := config.Load(writeConfig(t, text))
	if err != nil {
		t.Fatalf("Load encoded config: %v", err)
	}
	if loaded.Runner.Concurrency != 9 {
		t.Fatalf("concurrency = %d, want 9", loaded.Runner.Concurrency)
	}
}
