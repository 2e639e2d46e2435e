package main

import (
	"fmt"
	"time"

	"kart-reconciler/internal/auth"

	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		userID string
		admin  bool
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an identity token for support and testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			token, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(userID, admin, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id carried by the token")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
