package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"miniq/internal/jobstore"
)

func newExpireCommand(ctx *commandContext) *cobra.Command {
	expireCmd := &cobra.Command{
		Use:   "expire",
		Short: "Run housekeeping steps by hand",
	}
	expireCmd.AddCommand(newExpireLocksCommand(ctx))
	expireCmd.AddCommand(newExpireJobsCommand(ctx))
	return expireCmd
}

func newExpireLocksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "locks",
		Short: "Return jobs with lapsed leases to the waiting state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(cmd.Context(), func(store jobstore.Store) error {
				n, err := store.ExpireLocks(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Expired %d locks\n", n)
				return nil
			})
		},
	}
}

func newExpireJobsCommand(ctx *commandContext) *cobra.Command {
	var jobType string
	var lockName string
	var olderThan time.Duration
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Delete jobs of one type and lock older than a cutoff",
		Long: "Deletes up to --limit jobs of --type whose lock matches --lock and whose\n" +
			"timestamp is older than --older-than. For done jobs the age is measured\n" +
			"from completion.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobType = strings.TrimSpace(jobType)
			if jobType == "" {
				return fmt.Errorf("--type is required")
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			lock := resolveLock(lockName)
			cutoff := time.Now().Add(-olderThan)
			if lock == jobstore.LockDone {
				cutoff = time.UnixMilli(cutoff.UnixMilli() + jobstore.DoneOffsetMs)
			}
			return ctx.withStore(cmd.Context(), func(store jobstore.Store) error {
				removed, err := store.ExpireJobs(cmd.Context(), jobType, lock, cutoff, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d %s jobs\n", len(removed), displayLock(lock))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&jobType, "type", "t", "", "Job type to delete")
	cmd.Flags().StringVarP(&lockName, "lock", "l", "done", "Lock to match: waiting, done, abandoned, or an owner sysid")
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Only delete jobs older than this")
	cmd.Flags().IntVarP(&limit, "limit", "n", 1000, "Maximum number of jobs to delete")
	return cmd
}
