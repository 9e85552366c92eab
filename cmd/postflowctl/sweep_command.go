package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.Publisher.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, report)
			}

			rows := [][]string{
				{"purged", strconv.Itoa(report.Purged)},
				{"published", strconv.Itoa(report.Published)},
				{"failed", strconv.Itoa(report.Failed)},
				{"token_expired", strconv.Itoa(report.TokenExpired)},
				{"retrying", strconv.Itoa(report.Retrying)},
				{"skipped", strconv.Itoa(report.Skipped)},
				{"conflicts", strconv.Itoa(report.Conflicts)},
				{"orphans", strconv.Itoa(report.Orphans)},
				{"errors", strconv.Itoa(report.Errors)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Outcome", "Items"}, rows, 1))
			return nil
		},
	}
}

func newDrainCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Replay writes queued while the store was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.Offline.Drain(cmd.Context())
			if err != nil {
				return fmt.Errorf("drain: %w", err)
			}
			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d, %d still queued\n", report.Replayed, report.Remaining)
			return nil
		},
	}
}
