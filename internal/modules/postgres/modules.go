package postgres

import (
	"context"
	"fmt"

	"kite_guard/internal/modules/config"
	"kite_guard/pkg/db"
	"kite_guard/pkg/logger"

	"go.uber.org/fx"
)

// Module отдаёт *db.PgTxManager; без db_dsn отдаёт nil, и журнал пойдёт в sqlite.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, lc fx.Lifecycle, cfg *config.Config) (*db.PgTxManager, error) {
				if cfg.DB == "" {
					return nil, nil
				}

				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN:      cfg.DB,
					MaxConns: 4,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				if err := poolMaster.Ping(ctx); err != nil {
					poolMaster.Close()
					return nil, fmt.Errorf("ping postgres: %w", err)
				}
				logger.Info("postgres: connected")

				tx := db.NewPgTxManager(poolMaster)
				lc.Append(fx.StopHook(tx.Close))
				return tx, nil
			},
		),
	)
}
