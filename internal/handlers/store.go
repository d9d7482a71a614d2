package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"miniq/internal/ids"
	"miniq/internal/jobstore"
)

// LangShell runs the body with "sh -c".
const LangShell = "sh"

// handlerSysidPrefix starts the sysid embedded in handler row ids.
const handlerSysidPrefix = "h"

const pruneLimit = 100

var (
	// ErrNotFound is returned when a job type has no handler.
	ErrNotFound = errors.New("handler not found")
	// ErrInvalidHandler is returned by Set for incomplete handlers.
	ErrInvalidHandler = errors.New("invalid handler")
)

// Handler describes how to execute jobs of one type.
type Handler struct {
	Lang string `json:"lang"`
	Body string `json:"body"`
	// UpdatedAt is recovered from the row id and not persisted in the payload.
	UpdatedAt time.Time `json:"-"`
}

// Store reads and writes handlers on top of a job store.
type Store struct {
	jobs  jobstore.Store
	gen   *ids.Generator
	sysid string
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for row dt values.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Store writing through jobs. Row ids come from gen under a
// sysid unique to this Store.
func New(jobs jobstore.Store, gen *ids.Generator, opts ...Option) *Store {
	s := &Store{jobs: jobs, gen: gen, sysid: ids.ProducerSysid(handlerSysidPrefix), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set replaces the handler for jobType.
func (s *Store) Set(ctx context.Context, jobType string, handler Handler) error {
	jobType = strings.TrimSpace(jobType)
	handler.Lang = strings.ToLower(strings.TrimSpace(handler.Lang))
	if jobType == "" || handler.Lang == "" || strings.TrimSpace(handler.Body) == "" {
		return fmt.Errorf("%w: type, lang and body are required", ErrInvalidHandler)
	}
	data, err := json.Marshal(handler)
	if err != nil {
		return fmt.Errorf("encode handler: %w", err)
	}
	row := jobstore.Job{
		ID:   jobstore.LockHandler + "-" + s.gen.Next(s.sysid),
		Type: jobType,
		Dt:   jobstore.FarFutureMs(s.now()),
		Lock: jobstore.LockHandler,
		Data: data,
	}
	if _, err := s.jobs.AddJobs(ctx, []jobstore.Job{row}); err != nil {
		return fmt.Errorf("store handler for %s: %w", jobType, err)
	}
	if _, err := s.jobs.ExpireJobs(ctx, jobType, jobstore.LockHandler, time.UnixMilli(row.Dt), pruneLimit); err != nil {
		return fmt.Errorf("prune handlers for %s: %w", jobType, err)
	}
	return nil
}

// Get returns the newest handler for jobType.
func (s *Store) Get(ctx context.Context, jobType string) (Handler, error) {
	rows, err := s.jobs.GetLockedJobs(ctx, jobType, jobstore.LockHandler, 1)
	if err != nil {
		return Handler{}, fmt.Errorf("load handler for %s: %w", jobType, err)
	}
	if len(rows) == 0 {
		return Handler{}, fmt.Errorf("%w: %s", ErrNotFound, jobType)
	}
	var handler Handler
	if err := json.Unmarshal(rows[0].Data, &handler); err != nil {
		return Handler{}, fmt.Errorf("decode handler for %s: %w", jobType, err)
	}
	if ts, err := ids.Timestamp(strings.TrimPrefix(rows[0].ID, jobstore.LockHandler+"-")); err == nil {
		handler.UpdatedAt = ts
	}
	return handler, nil
}
