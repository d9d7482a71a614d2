package journal

import (
	"time"

	"github.com/google/uuid"
)

type reservation[T any] struct {
	items    []T
	deadline time.Time
	read     bool
}

// reservations tracks outstanding tokens for the in-process backends. It is
// not safe for concurrent use; callers hold their own mutex. Deadlines are
// checked lazily: expired tokens are swept on every reserve and on access.
type reservations[T any] struct {
	byToken map[string]*reservation[T]
	pool    []T
}

func newReservations[T any]() *reservations[T] {
	return &reservations[T]{byToken: make(map[string]*reservation[T])}
}

// sweep returns the lines of every reservation whose deadline has passed.
func (r *reservations[T]) sweep(now time.Time) {
	for token, res := range r.byToken {
		if !now.Before(res.deadline) {
			r.giveBack(token, res)
		}
	}
}

func (r *reservations[T]) giveBack(token string, res *reservation[T]) {
	delete(r.byToken, token)
	if len(res.items) == 0 {
		return
	}
	pool := make([]T, 0, len(res.items)+len(r.pool))
	pool = append(pool, res.items...)
	r.pool = append(pool, r.pool...)
}

// reserve moves up to n pooled items under a new token.
func (r *reservations[T]) reserve(n int, deadline time.Time) (string, []T) {
	if n > len(r.pool) {
		n = len(r.pool)
	}
	if n <= 0 {
		return "", nil
	}
	items := append([]T(nil), r.pool[:n]...)
	r.pool = r.pool[n:]
	token := uuid.NewString()
	r.byToken[token] = &reservation[T]{items: items, deadline: deadline}
	return token, items
}

// live returns the reservation for token, expiring it first if its deadline
// has passed.
func (r *reservations[T]) live(token string, now time.Time) (*reservation[T], error) {
	res, ok := r.byToken[token]
	if !ok {
		return nil, ErrTokenExpired
	}
	if !now.Before(res.deadline) {
		r.giveBack(token, res)
		return nil, ErrTokenExpired
	}
	return res, nil
}

func (r *reservations[T]) read(token string, now time.Time) ([]T, error) {
	res, err := r.live(token, now)
	if err != nil {
		return nil, err
	}
	if res.read {
		return nil, ErrAlreadyRead
	}
	res.read = true
	return append([]T(nil), res.items...), nil
}

func (r *reservations[T]) cancel(token string) {
	if res, ok := r.byToken[token]; ok {
		r.giveBack(token, res)
	}
}

func (r *reservations[T]) commit(token string, now time.Time) ([]T, error) {
	res, err := r.live(token, now)
	if err != nil {
		return nil, err
	}
	delete(r.byToken, token)
	return res.items, nil
}

func (r *reservations[T]) outstanding() int {
	return len(r.byToken)
}
