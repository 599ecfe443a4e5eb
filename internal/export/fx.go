package export

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/smallbiznis/patronage/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("export",
	fx.Provide(provideDB),
	fx.Provide(func(conn *sqlx.DB) Source { return NewStore(conn) }),
	fx.Provide(provideUploader),
	fx.Provide(NewRunner),
)

func provideDB(lc fx.Lifecycle, cfg config.Config) (*sqlx.DB, error) {
	conn, err := Open(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return conn.Close()
		},
	})
	return conn, nil
}

func provideUploader(cfg config.Config) (Uploader, error) {
	uploader, err := NewS3Uploader(context.Background(), cfg.Export)
	if err != nil || uploader == nil {
		return nil, err
	}
	return uploader, nil
}
