package main

import (
	"context"
	"fmt"

	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "issue [email]",
		Short: "Issue a new API token for a user, replacing the old one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var users authdomain.Service
			return runOnce(cmd.Context(), func(ctx context.Context) error {
				token, err := users.IssueToken(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			},
				infrastructure(),
				domains(),
				fx.Populate(&users),
			)
		},
	})
	return cmd
}
