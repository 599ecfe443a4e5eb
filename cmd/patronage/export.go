package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/smallbiznis/patronage/internal/clock"
	"github.com/smallbiznis/patronage/internal/config"
	"github.com/smallbiznis/patronage/internal/export"
	"github.com/smallbiznis/patronage/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write reporting exports",
	}

	var opts export.Options
	monthly := &cobra.Command{
		Use:   "monthly",
		Short: "Export last month's reports as CSV files",
		Long: `Export last month's reports as CSV files.

The range defaults to the calendar month before START_DATE (or today).
END_DATE overrides the end of the range. Files are written under
<root>/Data/<year> and uploaded when EXPORT_S3_BUCKET is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				runner *export.Runner
				cfg    config.Config
				log    *zap.Logger
			)
			return runOnce(cmd.Context(), func(ctx context.Context) error {
				if strings.TrimSpace(opts.RootDir) == "" {
					opts.RootDir = cfg.Export.RootDir
				}
				summary, err := runner.Run(ctx, opts)
				if summary != nil && summary.SkipReason != "" {
					log.Info("export skipped", zap.String("reason", summary.SkipReason))
					return err
				}
				if summary != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "wrote %d files to %s\n", len(summary.Files), summary.Dir)
				}
				return err
			},
				config.Module,
				observability.Module,
				observability.FxLogger,
				clock.Module,
				export.Module,
				fx.Populate(&runner, &cfg, &log),
			)
		},
	}

	monthly.Flags().StringVar(&opts.StartDate, "start-date", os.Getenv("START_DATE"), "reference date, the previous month is exported")
	monthly.Flags().StringVar(&opts.EndDate, "end-date", os.Getenv("END_DATE"), "override the end of the range")
	monthly.Flags().StringVar(&opts.RootDir, "root", "", "output root directory (defaults to EXPORT_ROOT_DIR)")

	cmd.AddCommand(monthly)
	return cmd
}
