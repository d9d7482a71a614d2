package ids

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// alphabet is ordered by ASCII code so encoded values sort like numbers.
	alphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

	// TimestampWidth is the number of radix-64 digits holding the millisecond
	// timestamp (48 bits, enough until the year 10889).
	TimestampWidth = 8
	// SequenceWidth is the number of radix-64 digits holding the sequence.
	SequenceWidth = 3

	maxSequence = 1 << (6 * SequenceWidth)

	// producerSuffixWidth is the number of random digits ProducerSysid appends.
	producerSuffixWidth = 6
)

// ErrInvalidID reports an id that does not carry a decodable timestamp.
var ErrInvalidID = errors.New("invalid job id")

var digitValue = func() [256]int8 {
	var table [256]int8
	for i := range table {
		table[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		table[alphabet[i]] = int8(i)
	}
	return table
}()

// Generator issues strictly increasing ids. It is safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	now    func() time.Time
	lastMs int64
	seq    int
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// New constructs a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns a new id embedding sysid.
func (g *Generator) Next(sysid string) string {
	g.mu.Lock()
	ms, seq := g.advance()
	g.mu.Unlock()
	return encode(ms, sysid, seq)
}

// NextN returns count new ids embedding sysid, in increasing order.
func (g *Generator) NextN(sysid string, count int) []string {
	if count <= 0 {
		return nil
	}
	out := make([]string, count)
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range out {
		ms, seq := g.advance()
		out[i] = encode(ms, sysid, seq)
	}
	return out
}

// advance claims the next (timestamp, sequence) pair. When the sequence space
// of the current millisecond is exhausted, or the clock steps backwards, the
// generator moves to the next logical millisecond instead of reusing a value.
func (g *Generator) advance() (int64, int) {
	ms := g.now().UnixMilli()
	if ms > g.lastMs {
		g.lastMs = ms
		g.seq = 0
		return g.lastMs, g.seq
	}
	g.seq++
	if g.seq >= maxSequence {
		g.lastMs++
		g.seq = 0
	}
	return g.lastMs, g.seq
}

func encode(ms int64, sysid string, seq int) string {
	buf := make([]byte, TimestampWidth+len(sysid)+SequenceWidth)
	putDigits(buf[:TimestampWidth], uint64(ms))
	copy(buf[TimestampWidth:], sysid)
	putDigits(buf[TimestampWidth+len(sysid):], uint64(seq))
	return string(buf)
}

func putDigits(dst []byte, value uint64) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = alphabet[value&63]
		value >>= 6
	}
}

// ProducerSysid returns prefix followed by random radix-64 digits. Writers
// that never claim a sysid use it so two of them minting in the same
// millisecond cannot produce the same id.
func ProducerSysid(prefix string) string {
	raw := uuid.New()
	buf := make([]byte, len(prefix)+producerSuffixWidth)
	copy(buf, prefix)
	for i := range producerSuffixWidth {
		buf[len(prefix)+i] = alphabet[raw[i]&63]
	}
	return string(buf)
}

// Millis decodes the creation time embedded in id as Unix milliseconds.
func Millis(id string) (int64, error) {
	if len(id) < TimestampWidth+SequenceWidth {
		return 0, fmt.Errorf("%w: %q is too short", ErrInvalidID, id)
	}
	var ms int64
	for i := 0; i < TimestampWidth; i++ {
		d := digitValue[id[i]]
		if d < 0 {
			return 0, fmt.Errorf("%w: %q has non radix-64 timestamp", ErrInvalidID, id)
		}
		ms = ms<<6 | int64(d)
	}
	return ms, nil
}

// Timestamp decodes the creation time embedded in id.
func Timestamp(id string) (time.Time, error) {
	ms, err := Millis(id)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// Sysid returns the daemon identifier embedded in id.
func Sysid(id string) (string, error) {
	if _, err := Millis(id); err != nil {
		return "", err
	}
	return id[TimestampWidth : len(id)-SequenceWidth], nil
}
