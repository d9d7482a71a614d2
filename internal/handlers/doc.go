// Package handlers stores job type handlers inside the job store.
//
// A handler is a row of the handled type held by the reserved "__handler"
// lock with a far-future dt, which keeps it out of every claim, lease, and
// expiry path. Setting a handler writes a new row and prunes the older ones,
// so the newest row always wins.
package handlers
