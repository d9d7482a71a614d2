package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	if err := c.normalizeJournal(); err != nil {
		return err
	}
	c.Daemon.SysID = strings.TrimSpace(c.Daemon.SysID)
	c.Queue.SchedulerPolicy = strings.ToLower(strings.TrimSpace(c.Queue.SchedulerPolicy))
	if c.Queue.SchedulerPolicy == "" {
		c.Queue.SchedulerPolicy = defaultSchedulerPolicy
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Daemon.LockPath) == "" {
		c.Daemon.LockPath = filepath.Join(c.Paths.DataDir, "miniqd.lock")
	}
	if c.Daemon.LockPath, err = expandPath(c.Daemon.LockPath); err != nil {
		return fmt.Errorf("daemon.lock_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	var err error
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = filepath.Join(c.Paths.DataDir, "jobs.db")
	}
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	c.Store.PostgresURL = strings.TrimSpace(c.Store.PostgresURL)
	if c.Store.PostgresURL == "" {
		if value, ok := os.LookupEnv("MINIQ_POSTGRES_URL"); ok {
			c.Store.PostgresURL = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeJournal() error {
	c.Journal.Driver = strings.ToLower(strings.TrimSpace(c.Journal.Driver))
	if c.Journal.Driver == "" {
		c.Journal.Driver = defaultJournalDriver
	}
	c.Journal.Name = strings.TrimSpace(c.Journal.Name)
	if c.Journal.Name == "" {
		c.Journal.Name = defaultJournalName
	}
	var err error
	if strings.TrimSpace(c.Journal.Dir) == "" {
		c.Journal.Dir = filepath.Join(c.Paths.DataDir, "journal")
	}
	if c.Journal.Dir, err = expandPath(c.Journal.Dir); err != nil {
		return fmt.Errorf("journal.dir: %w", err)
	}
	if value, ok := os.LookupEnv("MINIQ_REDIS_ADDR"); ok && strings.TrimSpace(value) != "" {
		c.Journal.RedisAddr = strings.TrimSpace(value)
	}
	c.Journal.RedisAddr = strings.TrimSpace(c.Journal.RedisAddr)
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
