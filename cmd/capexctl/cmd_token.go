package main

import (
	"errors"
	"fmt"
	"time"

	"capex/internal/core"
	"capex/internal/middleware/auth"

	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		role    string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with CAPEX_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.AuthEnabled() {
				return errors.New("CAPEX_JWT_SECRET is not set")
			}
			r, err := core.ParseRole(role)
			if err != nil {
				return err
			}
			if subject == "" {
				return errors.New("--subject is required")
			}
			tok, err := auth.GenerateToken(cfg.JWTSecret, r, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(core.RoleUser), "role (admin|user)")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, also the draft session")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
