package stats

// Event names. Each phase and housekeeping step has an ok and an error event.
const (
	IngestOK        = "ingest.ok"
	IngestEmpty     = "ingest.empty"
	IngestJobs      = "ingest.jobs"
	IngestMalformed = "ingest.malformed"
	IngestRejected  = "ingest.rejected"
	IngestDuplicate = "ingest.duplicate"
	IngestError     = "ingest.error"

	DoneOK        = "done.ok"
	DoneArchived  = "done.archived"
	DoneRetried   = "done.retried"
	DoneAbandoned = "done.abandoned"
	DoneError     = "done.error"

	RunOK             = "run.ok"
	RunIdle           = "run.idle"
	RunStarted        = "run.started"
	RunHandlerMissing = "run.handler_missing"
	RunError          = "run.error"

	RenewOK    = "renew_locks.ok"
	RenewJobs  = "renew_locks.jobs"
	RenewError = "renew_locks.error"

	ExpireLocksOK    = "expire_locks.ok"
	ExpireLocksJobs  = "expire_locks.jobs"
	ExpireLocksError = "expire_locks.error"

	ExpireJobsOK        = "expire_jobs.ok"
	ExpireJobsPurged    = "expire_jobs.purged"
	ExpireJobsAbandoned = "expire_jobs.abandoned"
	ExpireJobsError     = "expire_jobs.error"

	LoopIteration = "loop.iteration"
	LoopError     = "loop.error"
)
