// Package jobstore holds the authoritative job table shared by every miniq
// daemon and the lease state machine that governs it.
//
// A row's (lock, dt) pair is its whole state: an empty lock with dt in the past
// is waiting, a daemon lock with dt in the future is a live lease, a daemon lock
// with dt in the past is a stale lease, and the reserved "__done",
// "__abandoned" and "__handler" locks mark rows that normal claims never see.
// The only legal mutations are the Store operations; every implementation must
// make each of them atomic with respect to the others, so that two concurrent
// GetJobs calls never return the same row inside one lease window.
//
// Three backends are provided: an in-process MemoryStore serialized by a mutex,
// a SQLite store whose claim is a single UPDATE ... RETURNING statement, and a
// Postgres store that claims with FOR UPDATE SKIP LOCKED.
package jobstore
