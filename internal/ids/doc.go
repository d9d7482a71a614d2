// Package ids generates the job identifiers used throughout miniq.
//
// An id is the concatenation of a fixed-width radix-64 millisecond timestamp,
// the issuing daemon's sysid, and a fixed-width radix-64 sequence number. The
// radix-64 alphabet is in ASCII order, so ids from one generator sort
// lexicographically in creation order and the creation time can be recovered
// from any id with Timestamp.
//
// Construct one Generator per process and share it; there is no package-level
// state, so several daemons can coexist in a single test binary.
package ids
