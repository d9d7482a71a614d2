package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateStore,
		c.validateJournal,
		c.validateQueue,
		c.validateHousekeeping,
		c.validateRunner,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.Store.PostgresURL == "" {
			return errors.New("store.postgres_url must be set when store.driver is postgres (or set MINIQ_POSTGRES_URL)")
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q", c.Store.Driver)
	}
	return nil
}

func (c *Config) validateJournal() error {
	switch c.Journal.Driver {
	case JournalMemory, JournalFile:
	case JournalRedis:
		if c.Journal.RedisAddr == "" {
			return errors.New("journal.redis_addr must be set when journal.driver is redis (or set MINIQ_REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("journal.driver: unsupported value %q", c.Journal.Driver)
	}
	if c.Journal.RedisDB < 0 {
		return errors.New("journal.redis_db must be >= 0")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.ingest_batch":       c.Queue.IngestBatch,
		"queue.reserve_timeout_ms": c.Queue.ReserveTimeoutMs,
		"queue.lease_seconds":      c.Queue.LeaseSeconds,
		"queue.max_retry_seconds":  c.Queue.MaxRetrySeconds,
		"queue.poll_interval_ms":   c.Queue.PollIntervalMs,
		"daemon.sysid_max":         c.Daemon.SysIDMax,
	}); err != nil {
		return err
	}
	if c.Queue.RetryDelaySeconds < 0 {
		return errors.New("queue.retry_delay_seconds must be >= 0")
	}
	switch c.Queue.SchedulerPolicy {
	case "random", "first", "fair":
	default:
		return fmt.Errorf("queue.scheduler_policy: unsupported value %q", c.Queue.SchedulerPolicy)
	}
	return nil
}

func (c *Config) validateHousekeeping() error {
	if err := ensurePositiveMap(map[string]int{
		"housekeeping.renew_interval_seconds":        c.Housekeeping.RenewIntervalSeconds,
		"housekeeping.expire_locks_interval_seconds": c.Housekeeping.ExpireLocksIntervalSeconds,
		"housekeeping.expire_jobs_interval_seconds":  c.Housekeeping.ExpireJobsIntervalSeconds,
		"housekeeping.done_retention_seconds":        c.Housekeeping.DoneRetentionSeconds,
		"housekeeping.abandon_after_seconds":         c.Housekeeping.AbandonAfterSeconds,
		"housekeeping.expire_limit":                  c.Housekeeping.ExpireLimit,
	}); err != nil {
		return err
	}
	if c.Queue.LeaseSeconds <= c.Housekeeping.RenewIntervalSeconds {
		return errors.New("queue.lease_seconds must be greater than housekeeping.renew_interval_seconds")
	}
	return nil
}

func (c *Config) validateRunner() error {
	return ensurePositiveMap(map[string]int{
		"runner.concurrency":             c.Runner.Concurrency,
		"runner.batch_size":              c.Runner.BatchSize,
		"runner.handler_timeout_seconds": c.Runner.HandlerTimeoutSeconds,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
