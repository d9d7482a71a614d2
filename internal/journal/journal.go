package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTokenExpired is returned for reservations that timed out, were
	// cancelled or committed, or never existed.
	ErrTokenExpired = errors.New("journal token expired")
	// ErrAlreadyRead is returned by a second Read of the same token.
	ErrAlreadyRead = errors.New("journal token already read")
	// ErrInvalidLine is returned by Write for lines that cannot be stored.
	ErrInvalidLine = errors.New("invalid journal line")
	// ErrConsumerBusy is returned when another process already drains a file
	// journal.
	ErrConsumerBusy = errors.New("journal consumer lock held by another process")
	// ErrClosed is returned by operations on a closed journal.
	ErrClosed = errors.New("journal closed")
	// ErrNotDurable is returned when the server did not confirm a write reached
	// stable storage.
	ErrNotDurable = errors.New("journal write not confirmed durable")
)

// Journal is the append log contract shared by every backend.
type Journal interface {
	// Write appends lines. They become durable no later than the next Sync.
	Write(ctx context.Context, lines []string) error
	// Sync blocks until every Write that returned before the call is durable.
	Sync(ctx context.Context) error
	// ReadReserve reserves up to n unconsumed lines for timeout. It returns
	// an empty token when nothing is available.
	ReadReserve(ctx context.Context, n int, timeout time.Duration) (string, error)
	// Read returns the lines held by token. It succeeds once per token.
	Read(ctx context.Context, token string) ([]string, error)
	// ReadCancel returns the lines held by token to the pool. Unknown tokens
	// are ignored.
	ReadCancel(ctx context.Context, token string) error
	// Commit permanently consumes the lines held by token.
	Commit(ctx context.Context, token string) error
	// Close releases the backend.
	Close() error
}

// ValidateLine reports whether line may be appended.
func ValidateLine(line string) error {
	switch {
	case line == "":
		return fmt.Errorf("%w: empty line", ErrInvalidLine)
	case strings.ContainsAny(line, "\r\n"):
		return fmt.Errorf("%w: line contains a newline", ErrInvalidLine)
	case line[0] == ' ':
		return fmt.Errorf("%w: line starts with a space", ErrInvalidLine)
	}
	return nil
}

func validateLines(lines []string) error {
	for i, line := range lines {
		if err := ValidateLine(line); err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
	}
	return nil
}

// Options holds settings shared by every backend.
type Options struct {
	Now func() time.Time
	// RedisWaitAOF makes Redis writes wait until the server has fsynced them
	// to its append-only file.
	RedisWaitAOF bool
}

// Option configures a backend.
type Option func(*Options)

// WithClock overrides the clock used for reservation deadlines.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithRedisWaitAOF makes every Redis Write block on WAITAOF until the local
// append-only file holds the lines. It requires appendonly yes on the server.
func WithRedisWaitAOF() Option {
	return func(o *Options) {
		o.RedisWaitAOF = true
	}
}

func buildOptions(opts []Option) Options {
	o := Options{Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
