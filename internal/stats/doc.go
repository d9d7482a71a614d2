// Package stats records the named events emitted by the queue loop and its
// housekeeping steps.
//
// Every event increments an OpenTelemetry Int64Counter named "miniq.<event>"
// on the configured meter and a local total that Snapshot reports, so the
// daemon status view works even when no MeterProvider is installed.
package stats
