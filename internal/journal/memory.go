package journal

import (
	"context"
	"sync"
	"time"
)

var _ Journal = (*Memory)(nil)

// Memory is an in-process journal. Writes are durable for the life of the
// process only.
type Memory struct {
	mu     sync.Mutex
	opts   Options
	res    *reservations[string]
	closed bool
}

// NewMemory returns an empty memory journal.
func NewMemory(opts ...Option) *Memory {
	return &Memory{opts: buildOptions(opts), res: newReservations[string]()}
}

func (m *Memory) lock(ctx context.Context) error {
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

// Write appends lines to the pool.
func (m *Memory) Write(ctx context.Context, lines []string) error {
	if err := validateLines(lines); err != nil {
		return err
	}
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	m.res.pool = append(m.res.pool, lines...)
	return nil
}

// Sync returns immediately; memory writes are visible once Write returns.
func (m *Memory) Sync(ctx context.Context) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	m.mu.Unlock()
	return nil
}

// ReadReserve reserves up to n pooled lines.
func (m *Memory) ReadReserve(ctx context.Context, n int, timeout time.Duration) (string, error) {
	if err := m.lock(ctx); err != nil {
		return "", err
	}
	defer m.mu.Unlock()
	now := m.opts.Now()
	m.res.sweep(now)
	token, _ := m.res.reserve(n, now.Add(timeout))
	return token, nil
}

// Read returns the lines held by token.
func (m *Memory) Read(ctx context.Context, token string) ([]string, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return m.res.read(token, m.opts.Now())
}

// ReadCancel returns token's lines to the front of the pool.
func (m *Memory) ReadCancel(ctx context.Context, token string) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	m.res.cancel(token)
	return nil
}

// Commit drops token's lines.
func (m *Memory) Commit(ctx context.Context, token string) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	_, err := m.res.commit(token, m.opts.Now())
	return err
}

// Pending returns the number of pooled lines not held by any reservation.
func (m *Memory) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.res.pool)
}

// Close marks the journal closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
