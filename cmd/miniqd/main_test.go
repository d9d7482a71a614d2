package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"miniq/internal/config"
)

func TestConfigPathFromEnv(t *testing.T) {
	t.Setenv(configEnv, "  /etc/miniq.toml ")
	if got := configPathFromEnv(); got != "/etc/miniq.toml" {
		t.Fatalf("configPathFromEnv() = %q", got)
	}
	t.Setenv(configEnv, "")
	if got := configPathFromEnv(); got != "" {
		t.Fatalf("configPathFromEnv() = %q, want empty", got)
	}
}

func TestLoadConfigCreatesDirectories(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", base)
	t.Setenv("MINIQ_POSTGRES_URL", "")
	t.Setenv("MINIQ_REDIS_ADDR", "")
	dataDir := filepath.Join(base, "data")
	path := filepath.Join(base, "miniq.toml")
	content := "[paths]\ndata_dir = \"" + dataDir + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Store.SQLitePath != filepath.Join(dataDir, "jobs.db") {
		t.Fatalf("sqlite path = %q", cfg.Store.SQLitePath)
	}
	for _, dir := range []string{cfg.Paths.LogDir, cfg.Journal.Dir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("directory %s not created: %v", dir, err)
		}
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", base)
	path := filepath.Join(base, "miniq.toml")
	if err := os.WriteFile(path, []byte("[runner]\nconcurrency = -2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfig(path); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("loadConfig = %v, want ErrInvalid", err)
	}
}
