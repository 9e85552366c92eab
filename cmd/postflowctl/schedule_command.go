package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/maheshrc27/postflow/internal/csvimport"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type accountsFile struct {
	Accounts []models.Account `toml:"accounts"`
}

func loadAccounts(path string) ([]models.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file accountsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Accounts) == 0 {
		return nil, fmt.Errorf("%s lists no accounts", path)
	}
	return file.Accounts, nil
}

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	var csvPath string
	var accountsPath string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule every row of a CSV on every account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if csvPath == "" || accountsPath == "" {
				return errors.New("--csv and --accounts are required")
			}
			accounts, err := loadAccounts(accountsPath)
			if err != nil {
				return err
			}

			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()
			intents, err := csvimport.Parse(f, time.Local, time.Now())
			if err != nil {
				return fmt.Errorf("read %s: %w", csvPath, err)
			}
			if len(intents) == 0 {
				return fmt.Errorf("%s has no rows with an image url", csvPath)
			}

			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			batch := service.NewBatchContext(accounts, intents)
			batch.ApplyWatermarks(cmd.Context(), a.Watermarks)
			result := a.Scheduler.ScheduleBatch(cmd.Context(), batch)

			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, transfer.ScheduleResponse{Succeeded: result.Succeeded, Failed: result.Failed})
			}

			rows := make([][]string, 0, len(result.Succeeded)+len(result.Failed))
			for _, r := range result.Succeeded {
				rows = append(rows, []string{r.AccountName, truncate(r.ImageURL, 40), string(r.Status), r.ID})
			}
			for _, pf := range result.Failed {
				rows = append(rows, []string{pf.AccountName, truncate(pf.ImageURL, 40), "error", pf.Error})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Account", "Image", "Result", "Detail"}, rows))
			fmt.Fprintf(cmd.OutOrStdout(), "%d scheduled, %d failed\n", len(result.Succeeded), len(result.Failed))
			if len(result.Succeeded) == 0 && len(result.Failed) > 0 {
				return errors.New("nothing was scheduled")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV with Image URL, Caption and Schedule Date columns")
	cmd.Flags().StringVar(&accountsPath, "accounts", "accounts.toml", "TOML file listing destination accounts")
	return cmd
}
