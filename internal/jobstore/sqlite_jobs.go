package jobstore

import (
	"context"
	"fmt"
	"time"
)

// AddJobs inserts jobs in one transaction, reporting rejects and duplicates.
func (s *SQLiteStore) AddJobs(ctx context.Context, jobs []Job) ([]Job, error) {
	admit, rejects := splitAdmissible(jobs, s.opts.Now())
	if len(admit) == 0 {
		return rejects, nil
	}

	var dups []string
	err := retryOnBusy(ctx, func() error {
		dups = dups[:0]
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, job := range admit {
			res, err := stmt.ExecContext(ctx, job.ID, job.Type, job.Dt, job.Lock, nullableBytes(job.Data))
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				dups = append(dups, job.ID)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("insert jobs: %w", err)
	}
	return rejects, duplicateError(dups)
}

// WaitingJobCounts counts eligible jobs by type.
func (s *SQLiteStore) WaitingJobCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COUNT(1) FROM jobs WHERE lock = '' AND dt <= ? GROUP BY type`,
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
			count   int
		)
		if err := rows.Scan(&jobType, &count); err != nil {
			return nil, err
		}
		counts[jobType] = count
	}
	return counts, rows.Err()
}

// GetJobs claims up to limit eligible jobs of jobType for owner. The claim is
// one UPDATE statement, so SQLite's write lock makes it atomic.
func (s *SQLiteStore) GetJobs(ctx context.Context, jobType string, limit int, owner string, lease time.Duration) ([]Job, error) {
	if limit <= 0 || owner == "" {
		return []Job{}, nil
	}
	now := s.opts.Now()
	jobs, err := s.queryJobsWithRetry(ctx, true,
		`UPDATE jobs SET lock = ?, dt = ?
         WHERE id IN (
             SELECT id FROM jobs
             WHERE type = ? AND lock = '' AND dt <= ?
             ORDER BY dt, id
             LIMIT ?
         )
         RETURNING `+jobColumns,
		owner, now.Add(lease).UnixMilli(), jobType, now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	sortOldestFirst(jobs)
	return jobs, nil
}

// GetLockedJobs lists rows held by lock, newest first.
func (s *SQLiteStore) GetLockedJobs(ctx context.Context, jobType, lock string, limit int) ([]Job, error) {
	if limit <= 0 {
		return []Job{}, nil
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE lock = ?`
	args := []any{lock}
	if jobType != "" {
		query += ` AND type = ?`
		args = append(args, jobType)
	}
	query += ` ORDER BY dt DESC, id DESC LIMIT ?`
	args = append(args, limit)

	jobs, err := s.queryJobsWithRetry(ctx, true, query, args...)
	if err != nil {
		return nil, fmt.Errorf("locked jobs: %w", err)
	}
	return jobs, nil
}

// RenewLocks extends owner's leases on ids.
func (s *SQLiteStore) RenewLocks(ctx context.Context, ids []string, owner string, lease time.Duration) error {
	if owner == "" {
		return nil
	}
	until := s.opts.Now().Add(lease).UnixMilli()
	for _, chunk := range chunkIDs(ids) {
		args := make([]any, 0, len(chunk)+2)
		args = append(args, until, owner)
		for _, id := range chunk {
			args = append(args, id)
		}
		if _, err := s.execWithRetry(ctx,
			`UPDATE jobs SET dt = ? WHERE lock = ? AND id IN (`+makePlaceholders(len(chunk))+`)`,
			args...,
		); err != nil {
			return fmt.Errorf("renew locks: %w", err)
		}
	}
	return nil
}

// ReleaseJobs transitions owner's rows among ids according to how.
func (s *SQLiteStore) ReleaseJobs(ctx context.Context, ids []string, owner string, how ReleaseHow) error {
	lock, dt, err := how.transition(s.opts.Now(), s.opts.RetryDelay)
	if err != nil {
		return err
	}
	if owner == "" {
		return nil
	}
	for _, chunk := range chunkIDs(ids) {
		args := make([]any, 0, len(chunk)+3)
		args = append(args, lock, dt, owner)
		for _, id := range chunk {
			args = append(args, id)
		}
		if _, err := s.execWithRetry(ctx,
			`UPDATE jobs SET lock = ?, dt = ? WHERE lock = ? AND id IN (`+makePlaceholders(len(chunk))+`)`,
			args...,
		); err != nil {
			return fmt.Errorf("release jobs (%s): %w", how, err)
		}
	}
	return nil
}

// ExpireLocks breaks stale daemon leases.
func (s *SQLiteStore) ExpireLocks(ctx context.Context) (int64, error) {
	nowMs := s.opts.Now().UnixMilli()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET lock = '', dt = ?
         WHERE lock NOT IN ('', ?, ?, ?) AND dt < ?`,
		nowMs, LockDone, LockHandler, LockAbandoned, nowMs,
	)
	if err != nil {
		return 0, fmt.Errorf("expire locks: %w", err)
	}
	return res.RowsAffected()
}

// ExpireJobs deletes up to limit rows held by lock with dt before cutoff.
func (s *SQLiteStore) ExpireJobs(ctx context.Context, jobType, lock string, cutoff time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		return []Job{}, nil
	}
	inner := `SELECT id FROM jobs WHERE lock = ? AND dt < ?`
	args := []any{lock, cutoff.UnixMilli()}
	if jobType != "" {
		inner += ` AND type = ?`
		args = append(args, jobType)
	}
	inner += ` ORDER BY dt, id LIMIT ?`
	args = append(args, limit)

	jobs, err := s.queryJobsWithRetry(ctx, false,
		`DELETE FROM jobs WHERE id IN (`+inner+`) RETURNING `+jobKeyColumns,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("expire jobs: %w", err)
	}
	sortOldestFirst(jobs)
	return jobs, nil
}
