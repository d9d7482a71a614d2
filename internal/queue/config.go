package queue

import (
	"time"

	"miniq/internal/config"
)

// Settings holds the loop and housekeeping parameters.
type Settings struct {
	IngestBatch    int
	ReserveTimeout time.Duration
	Lease          time.Duration
	MaxRetry       time.Duration
	PollInterval   time.Duration

	RenewInterval       time.Duration
	ExpireLocksInterval time.Duration
	ExpireJobsInterval  time.Duration
	DoneRetention       time.Duration
	AbandonAfter        time.Duration
	ExpireLimit         int
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	cfg := config.Default()
	return SettingsFromConfig(&cfg)
}

// SettingsFromConfig extracts queue settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return Settings{
		IngestBatch:         cfg.Queue.IngestBatch,
		ReserveTimeout:      cfg.ReserveTimeout(),
		Lease:               cfg.Lease(),
		MaxRetry:            cfg.MaxRetry(),
		PollInterval:        cfg.PollInterval(),
		RenewInterval:       seconds(cfg.Housekeeping.RenewIntervalSeconds),
		ExpireLocksInterval: seconds(cfg.Housekeeping.ExpireLocksIntervalSeconds),
		ExpireJobsInterval:  seconds(cfg.Housekeeping.ExpireJobsIntervalSeconds),
		DoneRetention:       seconds(cfg.Housekeeping.DoneRetentionSeconds),
		AbandonAfter:        seconds(cfg.Housekeeping.AbandonAfterSeconds),
		ExpireLimit:         cfg.Housekeeping.ExpireLimit,
	}
}
