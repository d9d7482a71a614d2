package jobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps the job table in PostgreSQL. Claims use
// FOR UPDATE SKIP LOCKED so concurrent daemons never block on each other's
// candidate rows.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts Options
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS miniq_jobs (
	id   TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	dt   BIGINT NOT NULL,
	lock TEXT NOT NULL DEFAULT '',
	data BYTEA
);
CREATE INDEX IF NOT EXISTS miniq_jobs_type_lock_dt ON miniq_jobs (type, lock, dt);
CREATE INDEX IF NOT EXISTS miniq_jobs_lock_dt ON miniq_jobs (lock, dt);
`

// OpenPostgres connects to url and ensures the job table exists.
func OpenPostgres(ctx context.Context, url string, opts ...Option) (*PostgresStore, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("postgres url is required")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool, opts: buildOptions(opts)}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// AddJobs inserts jobs in one transaction, reporting rejects and duplicates.
func (s *PostgresStore) AddJobs(ctx context.Context, jobs []Job) ([]Job, error) {
	admit, rejects := splitAdmissible(jobs, s.opts.Now())
	if len(admit) == 0 {
		return rejects, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, job := range admit {
		batch.Queue(
			`INSERT INTO miniq_jobs (id, type, dt, lock, data) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING`,
			job.ID, job.Type, job.Dt, job.Lock, job.Data,
		)
	}
	results := tx.SendBatch(ctx, batch)
	var dups []string
	for _, job := range admit {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return nil, fmt.Errorf("insert job %s: %w", job.ID, err)
		}
		if tag.RowsAffected() == 0 {
			dups = append(dups, job.ID)
		}
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("insert jobs: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return rejects, duplicateError(dups)
}

// WaitingJobCounts counts eligible jobs by type.
func (s *PostgresStore) WaitingJobCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT type, COUNT(1) FROM miniq_jobs WHERE lock = '' AND dt <= $1 GROUP BY type`,
		s.opts.Now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("waiting job counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			jobType string
			count   int64
		)
		if err := rows.Scan(&jobType, &count); err != nil {
			return nil, err
		}
		counts[jobType] = int(count)
	}
	return counts, rows.Err()
}

// GetJobs claims up to limit eligible jobs of jobType for owner.
func (s *PostgresStore) GetJobs(ctx context.Context, jobType string, limit int, owner string, lease time.Duration) ([]Job, error) {
	if limit <= 0 || owner == "" {
		return []Job{}, nil
	}
	now := s.opts.Now()
	jobs, err := s.queryJobs(ctx, true, `
		UPDATE miniq_jobs SET lock = $1, dt = $2
		WHERE lock = '' AND id IN (
			SELECT id FROM miniq_jobs
			WHERE type = $3 AND lock = '' AND dt <= $4
			ORDER BY dt, id
			FOR UPDATE SKIP LOCKED
			LIMIT $5
		)
		RETURNING id, type, dt, lock, data`,
		owner, now.Add(lease).UnixMilli(), jobType, now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	sortOldestFirst(jobs)
	return jobs, nil
}

// GetLockedJobs lists rows held by lock, newest first.
func (s *PostgresStore) GetLockedJobs(ctx context.Context, jobType, lock string, limit int) ([]Job, error) {
	if limit <= 0 {
		return []Job{}, nil
	}
	jobs, err := s.queryJobs(ctx, true, `
		SELECT id, type, dt, lock, data FROM miniq_jobs
		WHERE lock = $1 AND ($2::text = '' OR type = $2)
		ORDER BY dt DESC, id DESC
		LIMIT $3`,
		lock, jobType, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("locked jobs: %w", err)
	}
	return jobs, nil
}

// RenewLocks extends owner's leases on ids.
func (s *PostgresStore) RenewLocks(ctx context.Context, ids []string, owner string, lease time.Duration) error {
	if owner == "" || len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE miniq_jobs SET dt = $1 WHERE lock = $2 AND id = ANY($3)`,
		s.opts.Now().Add(lease).UnixMilli(), owner, ids,
	); err != nil {
		return fmt.Errorf("renew locks: %w", err)
	}
	return nil
}

// ReleaseJobs transitions owner's rows among ids according to how.
func (s *PostgresStore) ReleaseJobs(ctx context.Context, ids []string, owner string, how ReleaseHow) error {
	lock, dt, err := how.transition(s.opts.Now(), s.opts.RetryDelay)
	if err != nil {
		return err
	}
	if owner == "" || len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE miniq_jobs SET lock = $1, dt = $2 WHERE lock = $3 AND id = ANY($4)`,
		lock, dt, owner, ids,
	); err != nil {
		return fmt.Errorf("release jobs (%s): %w", how, err)
	}
	return nil
}

// ExpireLocks breaks stale daemon leases.
func (s *PostgresStore) ExpireLocks(ctx context.Context) (int64, error) {
	nowMs := s.opts.Now().UnixMilli()
	tag, err := s.pool.Exec(ctx, `
		UPDATE miniq_jobs SET lock = '', dt = $1
		WHERE lock NOT IN ('', $2, $3, $4) AND dt < $1`,
		nowMs, LockDone, LockHandler, LockAbandoned,
	)
	if err != nil {
		return 0, fmt.Errorf("expire locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireJobs deletes up to limit rows held by lock with dt before cutoff.
func (s *PostgresStore) ExpireJobs(ctx context.Context, jobType, lock string, cutoff time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		return []Job{}, nil
	}
	jobs, err := s.queryJobs(ctx, false, `
		DELETE FROM miniq_jobs WHERE id IN (
			SELECT id FROM miniq_jobs
			WHERE lock = $1 AND dt < $2 AND ($3::text = '' OR type = $3)
			ORDER BY dt, id
			FOR UPDATE SKIP LOCKED
			LIMIT $4
		)
		RETURNING id, type, dt, lock`,
		lock, cutoff.UnixMilli(), jobType, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("expire jobs: %w", err)
	}
	sortOldestFirst(jobs)
	return jobs, nil
}

func (s *PostgresStore) queryJobs(ctx context.Context, withData bool, query string, args ...any) ([]Job, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows, withData)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
