package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"miniq/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, backends, and tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, len(results))
			for i, result := range results {
				status := "ok"
				if !result.Passed {
					status = "FAIL"
				}
				rows[i] = []string{result.Name, status, result.Detail}
			}
			writeRows(cmd.OutOrStdout(), []string{"Check", "Status", "Detail"}, rows, nil)
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
}
