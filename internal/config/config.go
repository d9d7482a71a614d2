package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Daemon contains daemon identity settings.
type Daemon struct {
	// SysID, when set, is used as the daemon id instead of acquiring one.
	SysID    string `toml:"sysid"`
	SysIDMax int    `toml:"sysid_max"`
	LockPath string `toml:"lock_path"`
}

// Store selects and configures the job store backend.
type Store struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresURL string `toml:"postgres_url"`
}

// Journal selects and configures the journal backend.
type Journal struct {
	Driver        string `toml:"driver"`
	Dir           string `toml:"dir"`
	Name          string `toml:"name"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisWaitAOF  bool   `toml:"redis_wait_aof"`
}

// Queue contains orchestrator loop settings.
type Queue struct {
	IngestBatch       int    `toml:"ingest_batch"`
	ReserveTimeoutMs  int    `toml:"reserve_timeout_ms"`
	LeaseSeconds      int    `toml:"lease_seconds"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds"`
	MaxRetrySeconds   int    `toml:"max_retry_seconds"`
	PollIntervalMs    int    `toml:"poll_interval_ms"`
	SchedulerPolicy   string `toml:"scheduler_policy"`
}

// Housekeeping contains the periodic maintenance schedule.
type Housekeeping struct {
	RenewIntervalSeconds       int `toml:"renew_interval_seconds"`
	ExpireLocksIntervalSeconds int `toml:"expire_locks_interval_seconds"`
	ExpireJobsIntervalSeconds  int `toml:"expire_jobs_interval_seconds"`
	DoneRetentionSeconds       int `toml:"done_retention_seconds"`
	AbandonAfterSeconds        int `toml:"abandon_after_seconds"`
	ExpireLimit                int `toml:"expire_limit"`
}

// Runner contains local runner settings.
type Runner struct {
	Concurrency           int `toml:"concurrency"`
	BatchSize             int `toml:"batch_size"`
	HandlerTimeoutSeconds int `toml:"handler_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for miniq.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Daemon: sysid assignment and the single-instance lock
//   - Store: job store backend (memory, sqlite, postgres)
//   - Journal: journal backend (memory, file, redis)
//   - Queue: ingest batch size, leases, retries, loop cadence, scheduling
//   - Housekeeping: lease renewal, lock expiry, and purge schedule
//   - Runner: local worker pool
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Daemon       Daemon       `toml:"daemon"`
	Store        Store        `toml:"store"`
	Journal      Journal      `toml:"journal"`
	Queue        Queue        `toml:"queue"`
	Housekeeping Housekeeping `toml:"housekeeping"`
	Runner       Runner       `toml:"runner"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("miniq.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the configured backends write to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Store.Driver == StoreSQLite {
		dirs = append(dirs, filepath.Dir(c.Store.SQLitePath))
	}
	if c.Journal.Driver == JournalFile {
		dirs = append(dirs, c.Journal.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Lease returns the job lease length.
func (c *Config) Lease() time.Duration {
	return time.Duration(c.Queue.LeaseSeconds) * time.Second
}

// RetryDelay returns the backoff applied to retried jobs.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Queue.RetryDelaySeconds) * time.Second
}

// MaxRetry returns the age after which failing jobs are abandoned.
func (c *Config) MaxRetry() time.Duration {
	return time.Duration(c.Queue.MaxRetrySeconds) * time.Second
}

// ReserveTimeout returns the journal reservation timeout.
func (c *Config) ReserveTimeout() time.Duration {
	return time.Duration(c.Queue.ReserveTimeoutMs) * time.Millisecond
}

// PollInterval returns the idle sleep between loop iterations.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Queue.PollIntervalMs) * time.Millisecond
}

// HandlerTimeout returns the per-job limit for stored handlers.
func (c *Config) HandlerTimeout() time.Duration {
	return time.Duration(c.Runner.HandlerTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders cfg as TOML.
func Encode(cfg *Config) (string, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
