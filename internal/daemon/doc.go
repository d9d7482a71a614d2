// Package daemon owns the lifecycle of one miniqd process.
//
// It acquires a flock-based single-instance lock for the data directory,
// runs the queue loop and the housekeeping schedule side by side, and on
// shutdown hands interrupted jobs back to the store and frees the sysid the
// process claimed at startup.
//
// Keep queue semantics in the queue package: the daemon only starts, stops,
// and reports on it.
package daemon
