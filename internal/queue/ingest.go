package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"miniq/internal/ids"
	"miniq/internal/jobstore"
	"miniq/internal/journal"
	"miniq/internal/logging"
	"miniq/internal/stats"
)

// IngestJournal moves one reserved batch of journal records into the store
// and returns how many jobs were admitted. Malformed records are logged and
// dropped. When the store fails the reservation is cancelled so the records
// come back on a later iteration.
func (q *Queue) IngestJournal(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { q.stats.Observe(ctx, "ingest", time.Since(start)) }()

	token, err := q.journal.ReadReserve(ctx, q.settings.IngestBatch, q.settings.ReserveTimeout)
	if err != nil {
		q.stats.Incr(ctx, stats.IngestError)
		return 0, fmt.Errorf("reserve journal lines: %w", err)
	}
	if token == "" {
		q.stats.Incr(ctx, stats.IngestEmpty)
		return 0, nil
	}
	logger := q.logger.With(logging.String(logging.FieldToken, token))

	lines, err := q.journal.Read(ctx, token)
	if err != nil {
		q.cancelReservation(ctx, token)
		q.stats.Incr(ctx, stats.IngestError)
		return 0, fmt.Errorf("read journal reservation: %w", err)
	}

	now := q.now()
	jobs := make([]jobstore.Job, 0, len(lines))
	for _, line := range lines {
		rec, err := journal.ParseRecord(line)
		if err != nil {
			q.stats.Incr(ctx, stats.IngestMalformed)
			logger.Warn("dropping malformed journal line",
				logging.Error(err),
				logging.String("line", truncate(line, 200)),
				logging.String(logging.FieldEventType, "journal_line_malformed"),
				logging.String(logging.FieldErrorHint, "producers must write id|type|payload records"),
			)
			continue
		}
		jobs = append(jobs, jobstore.Job{
			ID:   rec.ID,
			Type: rec.Type,
			Dt:   ingestDt(rec.ID, now),
			Data: []byte(rec.Payload),
		})
	}

	admitted := len(jobs)
	if len(jobs) > 0 {
		rejects, err := q.store.AddJobs(ctx, jobs)
		var dup *jobstore.DuplicateError
		switch {
		case errors.As(err, &dup):
			// Already ingested by an earlier, uncommitted pass.
			admitted -= len(dup.IDs)
			q.stats.Add(ctx, stats.IngestDuplicate, int64(len(dup.IDs)))
			logger.Info("skipped already ingested jobs", logging.Count(len(dup.IDs)))
		case err != nil:
			q.cancelReservation(ctx, token)
			q.stats.Incr(ctx, stats.IngestError)
			return 0, fmt.Errorf("add ingested jobs: %w", err)
		}
		if len(rejects) > 0 {
			admitted -= len(rejects)
			q.stats.Add(ctx, stats.IngestRejected, int64(len(rejects)))
			logger.Warn("store rejected ingested jobs",
				logging.Count(len(rejects)),
				logging.String(logging.FieldEventType, "ingest_rejected"),
				logging.String(logging.FieldErrorHint, "every record needs a non-empty id and type"),
			)
		}
	}

	if err := q.journal.Commit(ctx, token); err != nil {
		q.stats.Incr(ctx, stats.IngestError)
		return admitted, fmt.Errorf("commit journal reservation: %w", err)
	}
	q.stats.Incr(ctx, stats.IngestOK)
	q.stats.Add(ctx, stats.IngestJobs, int64(admitted))
	if admitted > 0 {
		logger.Debug("ingested journal batch", logging.Count(admitted))
	}
	return admitted, nil
}

func (q *Queue) cancelReservation(ctx context.Context, token string) {
	if err := q.journal.ReadCancel(ctx, token); err != nil {
		logging.WarnWithContext(q.logger, "cancel journal reservation failed", "journal_cancel_failed",
			logging.String(logging.FieldToken, token),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "lines return to the journal when the reservation times out"),
		)
	}
}

// ingestDt recovers a job's creation time from its id. Ids that do not carry
// a plausible timestamp (undecodable, zero, or in the future) use now.
func ingestDt(id string, now time.Time) int64 {
	nowMs := now.UnixMilli()
	ms, err := ids.Millis(id)
	if err != nil || ms <= 0 || ms > nowMs {
		return nowMs
	}
	return ms
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
