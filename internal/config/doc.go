// Package config loads, normalizes, and validates miniq configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MINIQ_POSTGRES_URL and MINIQ_REDIS_ADDR. The Config type centralizes every
// knob the daemon and CLI need: where the job store and journal live, the
// queue loop cadence, lease and retry timing, housekeeping intervals, and the
// local runner's pool size.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, known driver names, and clear validation errors.
package config
