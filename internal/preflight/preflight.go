package preflight

import (
	"context"

	"miniq/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Local runs the checks that need no backend connection.
func Local(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Journal.Driver == config.JournalFile {
		results = append(results, CheckDirectoryAccess("Journal directory", cfg.Journal.Dir))
	}
	results = append(results, CheckShell(shellBinary))
	return results
}

// RunAll executes every applicable preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := Local(cfg)
	results = append(results, CheckStore(ctx, cfg))
	results = append(results, CheckJournal(ctx, cfg))
	results = append(results, CheckDaemonLock(cfg.Daemon.LockPath))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, result := range results {
		if !result.Passed {
			out = append(out, result)
		}
	}
	return out
}
