package queue

import (
	"context"
	"errors"
	"fmt"

	"miniq/internal/jobstore"
	"miniq/internal/logging"
	"miniq/internal/runner"
)

// Shutdown stops the runner, releases finished results normally, and gives
// interrupted jobs back to the queue without the retry penalty.
func (q *Queue) Shutdown(ctx context.Context) error {
	interrupted := q.runner.Stop(ctx)

	var errs []error
	if _, err := q.HandleDoneJobs(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(interrupted) > 0 {
		stopped := make([]runner.DoneJob, len(interrupted))
		for i, job := range interrupted {
			stopped[i] = runner.DoneJob{ID: job.ID, Type: job.Type}
		}
		q.jobsStopped(stopped)
		if err := q.release(ctx, jobIDs(interrupted), jobstore.ReleaseUnget); err != nil {
			errs = append(errs, fmt.Errorf("unget %d interrupted jobs: %w", len(interrupted), err))
		} else {
			q.logger.Info("returned interrupted jobs to the queue", logging.Count(len(interrupted)))
		}
	}
	return errors.Join(errs...)
}
