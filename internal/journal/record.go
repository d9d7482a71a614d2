package journal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedRecord is returned by ParseRecord for lines that are not
// id|type|payload.
var ErrMalformedRecord = errors.New("malformed journal record")

// Record is one job request as stored in the journal.
type Record struct {
	ID      string
	Type    string
	Payload string
}

// EncodeRecord renders rec as id|type|payload. The payload may contain '|'
// but not newlines.
func EncodeRecord(rec Record) (string, error) {
	if err := rec.validate(); err != nil {
		return "", err
	}
	if strings.ContainsAny(rec.Payload, "\r\n") {
		return "", fmt.Errorf("%w: payload contains a newline", ErrMalformedRecord)
	}
	return rec.ID + "|" + rec.Type + "|" + rec.Payload, nil
}

// ParseRecord splits line on its first two '|' separators.
func ParseRecord(line string) (Record, error) {
	id, rest, ok := strings.Cut(line, "|")
	if !ok {
		return Record{}, fmt.Errorf("%w: missing type", ErrMalformedRecord)
	}
	jobType, payload, ok := strings.Cut(rest, "|")
	if !ok {
		return Record{}, fmt.Errorf("%w: missing payload separator", ErrMalformedRecord)
	}
	rec := Record{ID: id, Type: jobType, Payload: payload}
	if err := rec.validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (rec Record) validate() error {
	switch {
	case rec.ID == "":
		return fmt.Errorf("%w: empty id", ErrMalformedRecord)
	case rec.ID[0] == ' ':
		return fmt.Errorf("%w: id starts with a space", ErrMalformedRecord)
	case strings.ContainsAny(rec.ID, "|\r\n"):
		return fmt.Errorf("%w: id contains a separator", ErrMalformedRecord)
	case rec.Type == "":
		return fmt.Errorf("%w: empty type", ErrMalformedRecord)
	case strings.ContainsAny(rec.Type, "|\r\n"):
		return fmt.Errorf("%w: type contains a separator", ErrMalformedRecord)
	}
	return nil
}
