// Package backends opens the job store and journal selected by the
// configuration.
package backends

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"miniq/internal/config"
	"miniq/internal/jobstore"
	"miniq/internal/journal"
)

// OpenStore opens the job store selected by cfg.Store.Driver.
func OpenStore(ctx context.Context, cfg *config.Config, opts ...jobstore.Option) (jobstore.Store, error) {
	opts = append([]jobstore.Option{jobstore.WithRetryDelay(cfg.RetryDelay())}, opts...)
	switch cfg.Store.Driver {
	case config.StoreMemory:
		return jobstore.NewMemory(opts...), nil
	case config.StoreSQLite:
		store, err := jobstore.OpenSQLite(cfg.Store.SQLitePath, opts...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.StorePostgres:
		store, err := jobstore.OpenPostgres(ctx, cfg.Store.PostgresURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("store driver %q is not supported", cfg.Store.Driver)
	}
}

// OpenJournal opens the journal selected by cfg.Journal.Driver.
func OpenJournal(ctx context.Context, cfg *config.Config, opts ...journal.Option) (journal.Journal, error) {
	switch cfg.Journal.Driver {
	case config.JournalMemory:
		return journal.NewMemory(opts...), nil
	case config.JournalFile:
		j, err := journal.OpenFile(cfg.Journal.Dir, cfg.Journal.Name, opts...)
		if err != nil {
			return nil, fmt.Errorf("open file journal: %w", err)
		}
		return j, nil
	case config.JournalRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Journal.RedisAddr,
			Password: cfg.Journal.RedisPassword,
			DB:       cfg.Journal.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.Journal.RedisAddr, err)
		}
		if cfg.Journal.RedisWaitAOF {
			opts = append([]journal.Option{journal.WithRedisWaitAOF()}, opts...)
		}
		return &redisJournal{Redis: journal.NewRedis(client, cfg.Journal.Name, opts...), client: client}, nil
	default:
		return nil, fmt.Errorf("journal driver %q is not supported", cfg.Journal.Driver)
	}
}

// redisJournal closes the client it was opened with.
type redisJournal struct {
	*journal.Redis
	client *redis.Client
}

func (r *redisJournal) Close() error {
	return r.client.Close()
}
