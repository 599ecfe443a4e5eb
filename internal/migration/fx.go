package migration

import (
	"github.com/smallbiznis/patronage/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module migrates on startup when MIGRATE_ON_START is set.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.MigrateOnStart {
			return nil
		}
		_, err := Migrate(conn, log)
		return err
	}),
)

// Migrate runs the embedded migrations on the gorm connection pool.
func Migrate(conn *gorm.DB, log *zap.Logger) (State, error) {
	sqlDB, err := conn.DB()
	if err != nil {
		return State{}, err
	}
	state, err := RunMigrations(sqlDB)
	if err != nil {
		return state, err
	}
	log.Named("migration").Info("database schema is up to date",
		zap.Uint("version", state.Version),
		zap.Bool("changed", state.Changed),
	)
	return state, nil
}
