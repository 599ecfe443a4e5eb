package main

import (
	"github.com/smallbiznis/patronage/internal/migration"
	"github.com/smallbiznis/patronage/internal/scheduler"
	"github.com/smallbiznis/patronage/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd() *cobra.Command {
	var withScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{
				infrastructure(),
				domains(),
				migration.Module,
				server.Module,
			}
			if withScheduler {
				opts = append(opts, scheduler.Module, scheduler.RunModule)
			}
			fx.New(opts...).Run()
			return nil
		},
	}

	cmd.Flags().BoolVar(&withScheduler, "scheduler", true, "run scheduled jobs in this process")
	return cmd
}
