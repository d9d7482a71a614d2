package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"miniq/internal/jobstore"
)

const (
	sysidType   = "__sysid"
	sysidPrefix = "__sysid-"
)

// ErrNoSysID is returned when every sysid up to the limit is taken.
var ErrNoSysID = errors.New("no free sysid")

// SysIDClaim is a sysid row held by one daemon session.
type SysIDClaim struct {
	SysID   string
	Session string
	rowID   string
}

// AcquireSysID claims the lowest free sysid in 1..limit for session by inserting
// a far-future row held by the session. A duplicate id means the sysid is
// taken and the next one is tried. The sysid is the base-36 row number.
func AcquireSysID(ctx context.Context, store jobstore.Store, session string, limit int, now time.Time) (SysIDClaim, error) {
	if strings.TrimSpace(session) == "" {
		return SysIDClaim{}, errors.New("sysid session required")
	}
	for n := 1; n <= limit; n++ {
		sysid := strconv.FormatInt(int64(n), 36)
		row := jobstore.Job{
			ID:   sysidPrefix + sysid,
			Type: sysidType,
			Dt:   jobstore.FarFutureMs(now),
			Lock: session,
		}
		_, err := store.AddJobs(ctx, []jobstore.Job{row})
		if errors.Is(err, jobstore.ErrDuplicateID) {
			continue
		}
		if err != nil {
			return SysIDClaim{}, fmt.Errorf("claim sysid %s: %w", sysid, err)
		}
		return SysIDClaim{SysID: sysid, Session: session, rowID: row.ID}, nil
	}
	return SysIDClaim{}, fmt.Errorf("%w: all %d in use", ErrNoSysID, limit)
}

// ReleaseSysID deletes the claim row so another daemon can take the sysid.
func ReleaseSysID(ctx context.Context, store jobstore.Store, claim SysIDClaim, now time.Time) error {
	if claim.rowID == "" {
		return nil
	}
	cutoff := time.UnixMilli(jobstore.FarFutureMs(now) + 1)
	removed, err := store.ExpireJobs(ctx, sysidType, claim.Session, cutoff, 1)
	if err != nil {
		return fmt.Errorf("release sysid %s: %w", claim.SysID, err)
	}
	if len(removed) == 0 {
		return fmt.Errorf("release sysid %s: claim row not found", claim.SysID)
	}
	return nil
}
