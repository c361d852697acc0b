package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/crosspost/pkg/utils"
	"github.com/spf13/cobra"
)

func newTokenCommand() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed API token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireSecretKey(); err != nil {
				return err
			}

			token, err := utils.GenerateToken(cfg.SecretKey, userID, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "how long the token stays valid")
	return cmd
}
