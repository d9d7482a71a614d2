package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"miniq/internal/backends"
	"miniq/internal/config"
)

// shellBinary runs stored "sh" handlers.
const shellBinary = "sh"

const backendTimeout = 10 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckShell verifies that the shell used by stored handlers is on PATH.
func CheckShell(name string) Result {
	const label = "Handler shell"
	path, err := exec.LookPath(name)
	if err != nil {
		return Result{Name: label, Detail: fmt.Sprintf("%s not found; stored sh handlers will fail", name)}
	}
	return Result{Name: label, Passed: true, Detail: path}
}

// CheckStore opens the configured job store and counts waiting jobs.
func CheckStore(ctx context.Context, cfg *config.Config) Result {
	name := "Job store (" + cfg.Store.Driver + ")"

	checkCtx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()

	store, err := backends.OpenStore(checkCtx, cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer store.Close()

	counts, err := store.WaitingJobCounts(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("query failed (%v)", err)}
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable, %d waiting across %d types", total, len(counts))}
}

// CheckJournal opens the configured journal. It never reserves lines, so it
// is safe while a daemon is consuming.
func CheckJournal(ctx context.Context, cfg *config.Config) Result {
	name := "Journal (" + cfg.Journal.Driver + ")"

	checkCtx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()

	j, err := backends.OpenJournal(checkCtx, cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if err := j.Close(); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("close failed (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckDaemonLock reports whether a daemon holds the lock at path. A held
// lock is not a failure.
func CheckDaemonLock(path string) Result {
	const name = "Daemon lock"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Result{Name: name, Passed: true, Detail: "free (no daemon has run here)"}
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if !ok {
		return Result{Name: name, Passed: true, Detail: "held by a running daemon"}
	}
	_ = lock.Unlock()
	return Result{Name: name, Passed: true, Detail: "free"}
}
