package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maheshrc27/postflow/pkg/utils"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.ensureConfig()
			token, err := utils.GenerateToken(cfg.SecretKey, userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "operator", "Subject recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
