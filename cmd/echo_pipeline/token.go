package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/echo-pipeline/internal/server"
)

func newTokenCmd(global *globalOptions) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Long: `Signs an API token for the given subject with server.auth.secret
(or ECHO_AUTH_SECRET). Tokens expire after server.auth.expiration_hours.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			tokens, err := server.NewTokenService(cfg.Server.Auth)
			if err != nil {
				return err
			}
			token, err := tokens.GenerateToken(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Who the token is issued to (required)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
