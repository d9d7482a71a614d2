package jobstore

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. A single mutex serializes every
// operation, which is what makes GetJobs atomic for concurrent callers.
type MemoryStore struct {
	mu     sync.Mutex
	opts   Options
	jobs   map[string]*Job
	byType map[string]map[string]*Job
	closed bool
}

// NewMemory returns an empty MemoryStore.
func NewMemory(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:   buildOptions(opts),
		jobs:   make(map[string]*Job),
		byType: make(map[string]map[string]*Job),
	}
}

// Close marks the store closed; later calls return ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// AddJobs inserts jobs, reporting rejects and duplicates.
func (m *MemoryStore) AddJobs(ctx context.Context, jobs []Job) ([]Job, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	admit, rejects := splitAdmissible(jobs, m.opts.Now())
	var dups []string
	for _, job := range admit {
		if _, exists := m.jobs[job.ID]; exists {
			dups = append(dups, job.ID)
			continue
		}
		row := job.clone()
		m.jobs[row.ID] = &row
		bucket := m.byType[row.Type]
		if bucket == nil {
			bucket = make(map[string]*Job)
			m.byType[row.Type] = bucket
		}
		bucket[row.ID] = &row
	}
	return rejects, duplicateError(dups)
}

// WaitingJobCounts counts eligible jobs by type.
func (m *MemoryStore) WaitingJobCounts(ctx context.Context) (map[string]int, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	now := m.opts.Now()
	counts := make(map[string]int)
	for jobType, bucket := range m.byType {
		for _, row := range bucket {
			if row.Eligible(now) {
				counts[jobType]++
			}
		}
	}
	return counts, nil
}

// GetJobs claims up to limit eligible jobs of jobType for owner.
func (m *MemoryStore) GetJobs(ctx context.Context, jobType string, limit int, owner string, lease time.Duration) ([]Job, error) {
	if limit <= 0 || owner == "" {
		return []Job{}, nil
	}
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	now := m.opts.Now()
	candidates := make([]Job, 0, limit)
	for _, row := range m.byType[jobType] {
		if row.Eligible(now) {
			candidates = append(candidates, *row)
		}
	}
	sortOldestFirst(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	until := now.Add(lease).UnixMilli()
	claimed := make([]Job, 0, len(candidates))
	for _, candidate := range candidates {
		row := m.jobs[candidate.ID]
		row.Lock = owner
		row.Dt = until
		claimed = append(claimed, row.clone())
	}
	return claimed, nil
}

// GetLockedJobs lists rows held by lock, newest first.
func (m *MemoryStore) GetLockedJobs(ctx context.Context, jobType, lock string, limit int) ([]Job, error) {
	if limit <= 0 {
		return []Job{}, nil
	}
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	matches := make([]Job, 0)
	m.eachRow(jobType, func(row *Job) {
		if row.Lock == lock {
			matches = append(matches, row.clone())
		}
	})
	sortNewestFirst(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// RenewLocks extends owner's leases on ids.
func (m *MemoryStore) RenewLocks(ctx context.Context, ids []string, owner string, lease time.Duration) error {
	if len(ids) == 0 || owner == "" {
		return nil
	}
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()

	until := m.opts.Now().Add(lease).UnixMilli()
	for _, id := range ids {
		if row, ok := m.jobs[id]; ok && row.Lock == owner {
			row.Dt = until
		}
	}
	return nil
}

// ReleaseJobs transitions owner's rows among ids according to how.
func (m *MemoryStore) ReleaseJobs(ctx context.Context, ids []string, owner string, how ReleaseHow) error {
	lock, dt, err := how.transition(m.opts.Now(), m.opts.RetryDelay)
	if err != nil {
		return err
	}
	if len(ids) == 0 || owner == "" {
		return nil
	}
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()

	for _, id := range ids {
		if row, ok := m.jobs[id]; ok && row.Lock == owner {
			row.Lock = lock
			row.Dt = dt
		}
	}
	return nil
}

// ExpireLocks breaks stale daemon leases.
func (m *MemoryStore) ExpireLocks(ctx context.Context) (int64, error) {
	if err := m.lock(ctx); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	nowMs := m.opts.Now().UnixMilli()
	var broken int64
	for _, row := range m.jobs {
		if row.Lock == LockNone || IsReservedLock(row.Lock) || row.Dt >= nowMs {
			continue
		}
		row.Lock = LockNone
		row.Dt = nowMs
		broken++
	}
	return broken, nil
}

// ExpireJobs deletes up to limit rows held by lock with dt before cutoff.
func (m *MemoryStore) ExpireJobs(ctx context.Context, jobType, lock string, cutoff time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		return []Job{}, nil
	}
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	cutoffMs := cutoff.UnixMilli()
	matches := make([]Job, 0)
	m.eachRow(jobType, func(row *Job) {
		if row.Lock == lock && row.Dt < cutoffMs {
			matches = append(matches, *row)
		}
	})
	sortOldestFirst(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	for i := range matches {
		delete(m.jobs, matches[i].ID)
		if bucket := m.byType[matches[i].Type]; bucket != nil {
			delete(bucket, matches[i].ID)
			if len(bucket) == 0 {
				delete(m.byType, matches[i].Type)
			}
		}
		matches[i].Data = nil
	}
	return matches, nil
}

// Len returns the number of rows, including done and reserved rows.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *MemoryStore) eachRow(jobType string, fn func(*Job)) {
	if jobType != "" {
		for _, row := range m.byType[jobType] {
			fn(row)
		}
		return
	}
	for _, row := range m.jobs {
		fn(row)
	}
}
