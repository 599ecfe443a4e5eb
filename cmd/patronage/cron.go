package main

import (
	"context"

	"github.com/smallbiznis/patronage/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Run a scheduled job once",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "expiring-cards",
		Short: "Email owners of credit cards that expire this month",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), scheduler.JobExpiringCards)
		},
	})
	return cmd
}

func runJob(ctx context.Context, name string) error {
	var sched *scheduler.Scheduler
	return runOnce(ctx, func(ctx context.Context) error {
		return sched.RunJob(ctx, name)
	},
		infrastructure(),
		domains(),
		scheduler.Module,
		fx.Populate(&sched),
	)
}
