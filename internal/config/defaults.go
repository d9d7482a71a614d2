package config

// Backend driver names.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	JournalMemory = "memory"
	JournalFile   = "file"
	JournalRedis  = "redis"
)

const (
	defaultConfigPath                 = "~/.config/miniq/config.toml"
	defaultDataDir                    = "~/.local/share/miniq"
	defaultSysIDMax                   = 1024
	defaultStoreDriver                = StoreSQLite
	defaultJournalDriver              = JournalFile
	defaultJournalName                = "jobs"
	defaultRedisAddr                  = "127.0.0.1:6379"
	defaultIngestBatch                = 500
	defaultReserveTimeoutMs           = 30000
	defaultLeaseSeconds               = 60
	defaultRetryDelaySeconds          = 30
	defaultMaxRetrySeconds            = 86400
	defaultPollIntervalMs             = 500
	defaultSchedulerPolicy            = "random"
	defaultRenewIntervalSeconds       = 20
	defaultExpireLocksIntervalSeconds = 30
	defaultExpireJobsIntervalSeconds  = 300
	defaultDoneRetentionSeconds       = 7 * 86400
	defaultAbandonAfterSeconds        = 30 * 86400
	defaultExpireLimit                = 1000
	defaultRunnerConcurrency          = 4
	defaultRunnerBatchSize            = 10
	defaultHandlerTimeoutSeconds      = 300
	defaultLogFormat                  = "console"
	defaultLogLevel                   = "info"
)

// Default returns a Config populated with repository defaults. Paths left
// empty here are derived from data_dir during normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Daemon: Daemon{
			SysIDMax: defaultSysIDMax,
		},
		Store: Store{
			Driver: defaultStoreDriver,
		},
		Journal: Journal{
			Driver:    defaultJournalDriver,
			Name:      defaultJournalName,
			RedisAddr: defaultRedisAddr,
		},
		Queue: Queue{
			IngestBatch:       defaultIngestBatch,
			ReserveTimeoutMs:  defaultReserveTimeoutMs,
			LeaseSeconds:      defaultLeaseSeconds,
			RetryDelaySeconds: defaultRetryDelaySeconds,
			MaxRetrySeconds:   defaultMaxRetrySeconds,
			PollIntervalMs:    defaultPollIntervalMs,
			SchedulerPolicy:   defaultSchedulerPolicy,
		},
		Housekeeping: Housekeeping{
			RenewIntervalSeconds:       defaultRenewIntervalSeconds,
			ExpireLocksIntervalSeconds: defaultExpireLocksIntervalSeconds,
			ExpireJobsIntervalSeconds:  defaultExpireJobsIntervalSeconds,
			DoneRetentionSeconds:       defaultDoneRetentionSeconds,
			AbandonAfterSeconds:        defaultAbandonAfterSeconds,
			ExpireLimit:                defaultExpireLimit,
		},
		Runner: Runner{
			Concurrency:           defaultRunnerConcurrency,
			BatchSize:             defaultRunnerBatchSize,
			HandlerTimeoutSeconds: defaultHandlerTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
