// Package logging assembles the structured slog loggers used by the daemon,
// the CLI, and tests.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// standard attribute keys (component, event_type, error_hint, job_id, ...)
// so every component emits lines with the same shape. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
