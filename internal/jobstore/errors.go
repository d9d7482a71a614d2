package jobstore

import (
	"errors"
	"strings"
)

var (
	// ErrDuplicateID is returned (wrapped in *DuplicateError) when AddJobs
	// meets an id that already exists.
	ErrDuplicateID = errors.New("duplicate job id")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("job store closed")
	// ErrUnknownRelease is returned for a release mode outside ReleaseHow.
	ErrUnknownRelease = errors.New("unknown release mode")
)

// DuplicateError lists the ids AddJobs refused because they already existed.
// Every other row of the batch was inserted.
type DuplicateError struct {
	IDs []string
}

func (e *DuplicateError) Error() string {
	return ErrDuplicateID.Error() + ": " + strings.Join(e.IDs, ", ")
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateID
}

func duplicateError(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return &DuplicateError{IDs: ids}
}
