// Package runner executes claimed jobs.
//
// Local is an in-process worker pool. A job type is served either by a Go
// function registered with Register or by the stored handler the queue passes
// along with the batch. Results are collected until the queue drains them
// with DoneJobs; each carries a Code that decides how the job is released.
package runner
