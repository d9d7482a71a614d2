// Package journal provides the durable append log that producers write job
// requests to and daemons drain into the job store.
//
// Lines are newline-free strings, normally records encoded as id|type|payload.
// Consumers drain the log with a reserve/read/commit protocol: ReadReserve
// hands out a token that exclusively holds up to n unconsumed lines, Read
// returns them once, and Commit permanently consumes them. A reservation that
// is cancelled, or that reaches its deadline before Commit, returns its lines
// to the pool so a later reservation sees them again. A consumer that crashes
// mid-batch therefore loses nothing; the lines are simply delivered again.
//
// Three backends are provided: an in-process memory journal, a file journal
// shared between processes through advisory locks, and a Redis journal whose
// reservation steps run as Lua scripts.
package journal
