// Package queue drives the job lifecycle of one daemon.
//
// Each loop iteration runs three phases in a fixed order: IngestJournal moves
// journal records into the job store, HandleDoneJobs releases the results the
// runner reports, and RunNewJobs claims a batch of one scheduler-selected type
// and hands it to the runner. A phase failure is logged and counted but never
// stops the loop; only the caller's budget or context does.
//
// Housekeeping runs on its own cron schedule: lease renewal for jobs the
// runner still holds, breaking stale leases left by crashed daemons, and
// purging archived, abandoned, and long-unclaimed rows.
//
// Every job mutation goes through the jobstore.Store operations; the store's
// atomic claim is the only arbiter between daemons sharing it.
package queue
