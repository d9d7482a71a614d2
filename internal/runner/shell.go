package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"miniq/internal/jobstore"
	"miniq/internal/logging"
)

const (
	outputTail = 4096
	// waitDelay bounds how long a killed handler's children may hold the
	// output pipes open.
	waitDelay = 2 * time.Second
)

// runShell feeds the payload on stdin of "sh -c body". Exit 0 is ok, exit 75
// asks for a retry, any other exit fails the job. Start failures and timeouts
// are errors.
func (l *Local) runShell(ctx context.Context, body, owner string, job jobstore.Job) (Code, int, error) {
	cmd := commandContext(ctx, l.shell, "-c", body) //nolint:gosec
	cmd.Stdin = bytes.NewReader(job.Data)
	cmd.Env = append(os.Environ(),
		"MINIQ_JOB_ID="+job.ID,
		"MINIQ_JOB_TYPE="+job.Type,
		"MINIQ_LEASE_OWNER="+owner,
	)
	output := &tailBuffer{limit: outputTail}
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if len(output.buf) > 0 {
		l.logger.Debug("handler output",
			logging.String(logging.FieldJobID, job.ID),
			logging.JobType(job.Type),
			logging.String("output", string(output.buf)),
		)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return CodeError, -1, fmt.Errorf("handler for %s interrupted: %w", job.Type, ctxErr)
	}
	if err == nil {
		return CodeOK, 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		status := exitErr.ExitCode()
		if status == RetryExitCode {
			return CodeRetry, status, fmt.Errorf("handler for %s requested retry", job.Type)
		}
		return CodeFailed, status, fmt.Errorf("handler for %s failed (exit status %d): %w", job.Type, status, err)
	}
	return CodeError, -1, fmt.Errorf("start handler for %s: %w", job.Type, err)
}

// tailBuffer keeps the last limit bytes written to it. Stdout and Stderr
// share one instance, so exec drains both through a single pipe.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= b.limit {
		b.buf = append(b.buf[:0], p[n-b.limit:]...)
		return n, nil
	}
	if over := len(b.buf) + n - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.buf = append(b.buf, p...)
	return n, nil
}
