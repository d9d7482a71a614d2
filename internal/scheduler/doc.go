// Package scheduler decides which job type a daemon services next and keeps
// the per-type ledger of jobs currently running in that daemon.
//
// The choice itself is delegated to a Policy so deployments can trade
// fairness against simplicity; Random is the default.
package scheduler
