package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maheshrc27/postflow/internal/models"
)

func newUpcomingCommand(ctx *commandContext) *cobra.Command {
	var accountIDs []string

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List scheduled and pending posts for accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(accountIDs) == 0 {
				return errors.New("at least one --account is required")
			}
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			records, err := a.Scheduler.ListUpcoming(cmd.Context(), accountIDs)
			if err != nil {
				return err
			}
			return writeRecords(ctx, cmd, records, "Nothing scheduled")
		},
	}

	cmd.Flags().StringSliceVarP(&accountIDs, "account", "a", nil, "Account id (repeatable or comma separated)")
	return cmd
}

func writeRecords(ctx *commandContext, cmd *cobra.Command, records []*models.ScheduledRecord, empty string) error {
	if ctx.wantJSON(cmd) {
		if records == nil {
			records = []*models.ScheduledRecord{}
		}
		return writeJSON(cmd, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), empty)
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			r.AccountName,
			string(r.Platform),
			string(r.Status),
			r.ScheduledAt().Local().Format(time.DateTime),
			truncate(r.Caption, 40),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Account", "Platform", "Status", "Scheduled", "Caption"}, rows))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
