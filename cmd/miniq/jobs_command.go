package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"miniq/internal/ids"
	"miniq/internal/jobstore"
)

type jobView struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Lock    string `json:"lock"`
	Dt      int64  `json:"dt"`
	Created string `json:"created,omitempty"`
	Data    string `json:"data,omitempty"`
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var jobType string
	var lockName string
	var limit int
	var showData bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs held by a lock, newest first",
		Long: "Lists rows of the job store whose lock matches --lock. Besides an owner\n" +
			"sysid, --lock accepts waiting, done, handler, and abandoned.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			lock := resolveLock(lockName)
			return ctx.withStore(cmd.Context(), func(store jobstore.Store) error {
				jobs, err := store.GetLockedJobs(cmd.Context(), strings.TrimSpace(jobType), lock, limit)
				if err != nil {
					return err
				}
				views := make([]jobView, len(jobs))
				for i, job := range jobs {
					views[i] = newJobView(job, showData || asJSON)
				}
				if asJSON {
					return writeJSON(cmd, views)
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				headers := []string{"ID", "Type", "Lock", "When", "Created"}
				if showData {
					headers = append(headers, "Data")
				}
				rows := make([][]string, len(views))
				for i, view := range views {
					row := []string{view.ID, view.Type, displayLock(view.Lock), describeDt(jobs[i]), view.Created}
					if showData {
						row = append(row, view.Data)
					}
					rows[i] = row
				}
				writeRows(cmd.OutOrStdout(), headers, rows, nil)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&jobType, "type", "t", "", "Only list jobs of this type (default all types)")
	cmd.Flags().StringVarP(&lockName, "lock", "l", "waiting", "Lock to list: waiting, done, handler, abandoned, or an owner sysid")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs to list")
	cmd.Flags().BoolVar(&showData, "data", false, "Include job payloads")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func resolveLock(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "waiting":
		return jobstore.LockNone
	case "done":
		return jobstore.LockDone
	case "handler":
		return jobstore.LockHandler
	case "abandoned":
		return jobstore.LockAbandoned
	}
	return strings.TrimSpace(name)
}

func displayLock(lock string) string {
	if lock == jobstore.LockNone {
		return "waiting"
	}
	return lock
}

func newJobView(job jobstore.Job, withData bool) jobView {
	view := jobView{ID: job.ID, Type: job.Type, Lock: job.Lock, Dt: job.Dt}
	if created, err := ids.Timestamp(job.ID); err == nil {
		view.Created = formatTime(created)
	}
	if withData {
		view.Data = string(job.Data)
	}
	return view
}

// describeDt renders what dt means for the job's lock.
func describeDt(job jobstore.Job) string {
	if at, ok := job.CompletedAt(); ok {
		return "done " + formatTime(at)
	}
	if job.Dt-time.Now().UnixMilli() > jobstore.DoneOffsetMs {
		return "-"
	}
	at := formatTime(time.UnixMilli(job.Dt))
	switch job.Lock {
	case jobstore.LockNone:
		return "due " + at
	case jobstore.LockAbandoned:
		return "abandoned " + at
	}
	return "lease until " + at
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
