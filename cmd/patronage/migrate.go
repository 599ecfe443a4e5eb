package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/patronage/internal/config"
	"github.com/smallbiznis/patronage/internal/migration"
	"github.com/smallbiznis/patronage/internal/observability"
	"github.com/smallbiznis/patronage/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func migrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				conn *gorm.DB
				log  *zap.Logger
			)
			return runOnce(cmd.Context(), func(ctx context.Context) error {
				var (
					state migration.State
					err   error
				)
				if statusOnly {
					sqlDB, dbErr := conn.DB()
					if dbErr != nil {
						return dbErr
					}
					state, err = migration.Status(sqlDB)
				} else {
					state, err = migration.Migrate(conn, log)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", state.Version, state.Dirty)
				return nil
			},
				config.Module,
				observability.Module,
				observability.FxLogger,
				db.Module,
				fx.Populate(&conn, &log),
			)
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "print the schema version without migrating")
	return cmd
}
