package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"miniq/internal/jobstore"
)

func newWaitingCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "waiting",
		Short: "Count jobs that are ready to run, by type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(cmd.Context(), func(store jobstore.Store) error {
				counts, err := store.WaitingJobCounts(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, counts)
				}
				if len(counts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No waiting jobs")
					return nil
				}
				types := make([]string, 0, len(counts))
				for jobType := range counts {
					types = append(types, jobType)
				}
				sort.Strings(types)
				rows := make([][]string, len(types))
				for i, jobType := range types {
					rows[i] = []string{jobType, strconv.Itoa(counts[jobType])}
				}
				writeRows(cmd.OutOrStdout(), []string{"Type", "Waiting"}, rows, []columnAlignment{alignLeft, alignRight})
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
