package runner

import (
	"errors"
	"time"
)

// Code is the outcome of one job execution.
type Code string

const (
	// CodeOK means the job succeeded.
	CodeOK Code = "ok"
	// CodeRetry means the job asked to run again later.
	CodeRetry Code = "retry"
	// CodeFailed means the job failed permanently.
	CodeFailed Code = "failed"
	// CodeError means the job could not be executed (crash, timeout,
	// missing interpreter) and may succeed on another attempt.
	CodeError Code = "error"
)

// Terminal reports whether the outcome archives the job.
func (c Code) Terminal() bool {
	return c == CodeOK || c == CodeFailed
}

// RetryExitCode is the shell exit status that requests a retry (EX_TEMPFAIL).
const RetryExitCode = 75

var (
	// ErrRetry is returned by a job function to request a retry.
	ErrRetry = errors.New("retry job")
	// ErrFailed is returned by a job function to fail the job permanently.
	ErrFailed = errors.New("job failed")
	// ErrNoHandler is returned by RunJobs when a type has neither a registered
	// function nor a stored handler.
	ErrNoHandler = errors.New("no handler for job type")
	// ErrUnsupportedLang is returned by RunJobs for handler languages the
	// runner cannot execute.
	ErrUnsupportedLang = errors.New("unsupported handler language")
	// ErrStopped is returned by RunJobs after Stop.
	ErrStopped = errors.New("runner stopped")
)

// DoneJob is the result of one finished job.
type DoneJob struct {
	ID       string
	Type     string
	Code     Code
	ExitCode int
	Err      error
	Elapsed  time.Duration
}
