// Package main hosts the miniq CLI entrypoint and command graph.
//
// The Cobra command tree enqueues jobs through the configured journal, runs
// the daemon in the foreground, and inspects or maintains the job store
// directly: listing jobs by lock, counting waiting work, managing stored
// handlers, and forcing housekeeping steps. Configuration is resolved once
// per invocation and shared by every subcommand.
//
// Keep this package thin: behavior belongs in the internal packages and is
// only surfaced here.
package main
