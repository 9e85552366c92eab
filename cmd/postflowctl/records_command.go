package main

import (
	"github.com/spf13/cobra"

	"github.com/maheshrc27/postflow/internal/models"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List records in one status, e.g. token_expired accounts that need re-auth",
		RunE: func(cmd *cobra.Command, args []string) error {
			want, err := models.ParseRecordStatus(status)
			if err != nil {
				return err
			}
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			records, err := a.Records.ListByStatus(cmd.Context(), want)
			if err != nil {
				return err
			}
			return writeRecords(ctx, cmd, records, "No "+string(want)+" records")
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", string(models.RecordStatusFailed), "Record status to list")
	return cmd
}
