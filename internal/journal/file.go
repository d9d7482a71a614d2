package journal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

var _ Journal = (*File)(nil)

const lockRetryDelay = 10 * time.Millisecond

type fileLine struct {
	offset int64
	text   string
}

// File is a journal kept in <dir>/<name>.journal. Any number of processes may
// append; appends are serialized by <name>.lock. One process at a time may
// consume, enforced by <name>.consumer.lock, taken on its first ReadReserve.
//
// Consumed lines are tombstoned in place by overwriting their first byte with
// a space. Once every line has been consumed the file is truncated.
type File struct {
	mu       sync.Mutex
	opts     Options
	path     string
	appendFd *os.File
	rwFd     *os.File
	produce  *flock.Flock
	consume  *flock.Flock
	owner    bool
	offset   int64
	res      *reservations[fileLine]
	closed   bool
}

// OpenFile opens (creating if needed) the journal name inside dir.
func OpenFile(dir, name string, opts ...Option) (*File, error) {
	if strings.TrimSpace(dir) == "" || strings.TrimSpace(name) == "" {
		return nil, errors.New("journal dir and name are required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	path := filepath.Join(dir, name+".journal")
	appendFd, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal for append: %w", err)
	}
	rwFd, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		_ = appendFd.Close()
		return nil, fmt.Errorf("open journal for read: %w", err)
	}
	return &File{
		opts:     buildOptions(opts),
		path:     path,
		appendFd: appendFd,
		rwFd:     rwFd,
		produce:  flock.New(filepath.Join(dir, name+".lock")),
		consume:  flock.New(filepath.Join(dir, name+".consumer.lock")),
		res:      newReservations[fileLine](),
	}, nil
}

// Path returns the journal file location.
func (f *File) Path() string {
	return f.path
}

func (f *File) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (f *File) lockProducer(ctx context.Context) error {
	ok, err := f.produce.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire journal producer lock: %w", err)
	}
	if !ok {
		return errors.New("journal producer lock not acquired")
	}
	return nil
}

// Write appends lines in a single write under the producer lock.
func (f *File) Write(ctx context.Context, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	if err := validateLines(lines); err != nil {
		return err
	}
	if err := f.lock(ctx); err != nil {
		return err
	}
	defer f.mu.Unlock()

	if err := f.lockProducer(ctx); err != nil {
		return err
	}
	defer func() { _ = f.produce.Unlock() }()

	buf := strings.Join(lines, "\n") + "\n"
	if _, err := f.appendFd.WriteString(buf); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// Sync flushes appended lines to stable storage.
func (f *File) Sync(ctx context.Context) error {
	if err := f.lock(ctx); err != nil {
		return err
	}
	defer f.mu.Unlock()
	if err := datasync(f.appendFd); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// ReadReserve reserves up to n unconsumed lines, scanning the file past the
// last consumed position when the returned-line pool runs short.
func (f *File) ReadReserve(ctx context.Context, n int, timeout time.Duration) (string, error) {
	if err := f.lock(ctx); err != nil {
		return "", err
	}
	defer f.mu.Unlock()

	if !f.owner {
		ok, err := f.consume.TryLock()
		if err != nil {
			return "", fmt.Errorf("acquire journal consumer lock: %w", err)
		}
		if !ok {
			return "", ErrConsumerBusy
		}
		f.owner = true
	}

	now := f.opts.Now()
	f.res.sweep(now)
	if short := n - len(f.res.pool); short > 0 {
		lines, err := f.scan(short)
		if err != nil {
			return "", err
		}
		f.res.pool = append(f.res.pool, lines...)
	}
	token, _ := f.res.reserve(n, now.Add(timeout))
	return token, nil
}

// scan reads up to n complete, live lines after f.offset. A trailing line
// without its newline is left for a later scan.
func (f *File) scan(n int) ([]fileLine, error) {
	info, err := f.rwFd.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat journal: %w", err)
	}
	if info.Size() < f.offset {
		f.offset = 0
	}
	reader := bufio.NewReader(io.NewSectionReader(f.rwFd, f.offset, info.Size()-f.offset))
	var lines []fileLine
	for len(lines) < n {
		text, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read journal: %w", err)
		}
		start := f.offset
		f.offset += int64(len(text))
		text = strings.TrimSuffix(text, "\n")
		if text == "" || text[0] == ' ' {
			continue
		}
		lines = append(lines, fileLine{offset: start, text: text})
	}
	return lines, nil
}

// Read returns the lines held by token.
func (f *File) Read(ctx context.Context, token string) ([]string, error) {
	if err := f.lock(ctx); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	items, err := f.res.read(token, f.opts.Now())
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = item.text
	}
	return lines, nil
}

// ReadCancel returns token's lines to the pool.
func (f *File) ReadCancel(ctx context.Context, token string) error {
	if err := f.lock(ctx); err != nil {
		return err
	}
	defer f.mu.Unlock()
	f.res.cancel(token)
	return nil
}

// Commit tombstones token's lines and syncs the file.
func (f *File) Commit(ctx context.Context, token string) error {
	if err := f.lock(ctx); err != nil {
		return err
	}
	defer f.mu.Unlock()

	items, err := f.res.commit(token, f.opts.Now())
	if err != nil {
		return err
	}
	tombstone := []byte{' '}
	for _, item := range items {
		if _, err := f.rwFd.WriteAt(tombstone, item.offset); err != nil {
			return fmt.Errorf("tombstone journal line: %w", err)
		}
	}
	if err := datasync(f.rwFd); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return f.truncateIfDrained(ctx)
}

func (f *File) truncateIfDrained(ctx context.Context) error {
	if len(f.res.pool) > 0 || f.res.outstanding() > 0 {
		return nil
	}
	info, err := f.rwFd.Stat()
	if err != nil || info.Size() != f.offset {
		return nil
	}
	if err := f.lockProducer(ctx); err != nil {
		return err
	}
	defer func() { _ = f.produce.Unlock() }()

	// Re-check under the producer lock: an append may have landed.
	info, err = f.rwFd.Stat()
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}
	if info.Size() != f.offset {
		return nil
	}
	if err := f.rwFd.Truncate(0); err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}
	f.offset = 0
	return nil
}

// Close releases both file handles and any held locks.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	var errs []error
	if f.owner {
		errs = append(errs, f.consume.Unlock())
		f.owner = false
	}
	errs = append(errs, f.appendFd.Close(), f.rwFd.Close())
	return errors.Join(errs...)
}
