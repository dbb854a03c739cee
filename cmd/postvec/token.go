package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xxxsen/postvec/internal/pkg/jwt"
)

const version = "0.1.0"

func newTokenCmd() *cobra.Command {
	var (
		subject  string
		scope    string
		ttlHours int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "print an API token signed with server.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			token, err := jwt.GenerateToken(subject, scope, []byte(cfg.Server.JWTSecret), time.Duration(ttlHours)*time.Hour, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "client name carried in the token")
	cmd.Flags().StringVar(&scope, "scope", "", "optional scope claim")
	cmd.Flags().IntVar(&ttlHours, "ttl-hours", 24*30, "token lifetime in hours, 0 for no expiry")
	return cmd
}
