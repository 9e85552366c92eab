package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var envFlag string
	var jsonFlag bool

	ctx := newCommandContext(&envFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "postflowctl",
		Short:         "Operate the postflow scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFlag, "env", ".env", "Environment file to load")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Write JSON even on a terminal")

	rootCmd.AddCommand(newSweepCommand(ctx))
	rootCmd.AddCommand(newUpcomingCommand(ctx))
	rootCmd.AddCommand(newRecordsCommand(ctx))
	rootCmd.AddCommand(newScheduleCommand(ctx))
	rootCmd.AddCommand(newDrainCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))

	return rootCmd
}
