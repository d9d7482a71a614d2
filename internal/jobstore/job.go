package jobstore

import (
	"fmt"
	"time"
)

// Reserved lock values.
const (
	LockNone      = ""
	LockDone      = "__done"
	LockHandler   = "__handler"
	LockAbandoned = "__abandoned"
)

// DoneOffsetMs is added to the completion time of archived jobs so they sort
// after every live job: 1000 Julian years in milliseconds.
const DoneOffsetMs int64 = 31_557_600_000_000

// Job is one row of the job table. Dt is a Unix millisecond timestamp whose
// meaning depends on Lock (see the package documentation).
type Job struct {
	ID   string
	Type string
	Dt   int64
	Lock string
	Data []byte
}

// Eligible reports whether the job is waiting and may be claimed at now.
func (j Job) Eligible(now time.Time) bool {
	return j.Lock == LockNone && j.Dt <= now.UnixMilli()
}

// Leased reports whether owner holds a live lease on the job at now.
func (j Job) Leased(owner string, now time.Time) bool {
	return owner != "" && j.Lock == owner && j.Dt > now.UnixMilli()
}

// CompletedAt recovers the completion time of an archived job.
func (j Job) CompletedAt() (time.Time, bool) {
	if j.Lock != LockDone {
		return time.Time{}, false
	}
	return time.UnixMilli(j.Dt - DoneOffsetMs), true
}

func (j Job) clone() Job {
	out := j
	if j.Data != nil {
		out.Data = append([]byte(nil), j.Data...)
	}
	return out
}

// IsReservedLock reports whether lock is one of the sentinel values that are
// never owned by a daemon.
func IsReservedLock(lock string) bool {
	switch lock {
	case LockDone, LockHandler, LockAbandoned:
		return true
	}
	return false
}

// FarFutureMs returns a dt that keeps a pre-locked row out of reach of every
// time-based operation, while still ordering rows written later after it.
func FarFutureMs(now time.Time) int64 {
	return now.UnixMilli() + 2*DoneOffsetMs
}

// ReleaseHow selects the transition applied by ReleaseJobs.
type ReleaseHow string

const (
	// ReleaseArchive marks the job done: lock "__done", dt now+DoneOffsetMs.
	ReleaseArchive ReleaseHow = "archive"
	// ReleaseRetry returns the job to waiting after the retry delay.
	ReleaseRetry ReleaseHow = "retry"
	// ReleaseUnget returns the job to waiting immediately.
	ReleaseUnget ReleaseHow = "unget"
	// ReleaseAbandon parks the job under "__abandoned" for later purging.
	ReleaseAbandon ReleaseHow = "abandon"
)

// ParseReleaseHow validates a release mode name.
func ParseReleaseHow(value string) (ReleaseHow, error) {
	switch how := ReleaseHow(value); how {
	case ReleaseArchive, ReleaseRetry, ReleaseUnget, ReleaseAbandon:
		return how, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRelease, value)
}

// transition returns the (lock, dt) a released row moves to.
func (how ReleaseHow) transition(now time.Time, retryDelay time.Duration) (string, int64, error) {
	nowMs := now.UnixMilli()
	switch how {
	case ReleaseArchive:
		return LockDone, nowMs + DoneOffsetMs, nil
	case ReleaseRetry:
		return LockNone, nowMs + retryDelay.Milliseconds(), nil
	case ReleaseUnget:
		return LockNone, nowMs, nil
	case ReleaseAbandon:
		return LockAbandoned, nowMs, nil
	}
	return "", 0, fmt.Errorf("%w: %q", ErrUnknownRelease, string(how))
}
