package journal

import (
	"context"
	"errors"
	"fmt"

	"kite_guard/internal/modules/config"
	"kite_guard/internal/modules/journal/service"
	"kite_guard/internal/risk"
	"kite_guard/pkg/db"
	"kite_guard/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/fx"
)

var errNoPostgres = errors.New("journal.driver=postgres but postgres pool is not configured")

func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			NewStore,
			func(s service.Store) risk.Journal { return s },
			func(cfg *config.Config, s service.Store) *service.Guard {
				return service.NewGuard(s, cfg.Journal.Script, uuid.NewString(), cfg.Journal.StaleAfter)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, s service.Store) {
			lc.Append(fx.StopHook(func() error {
				return s.Close()
			}))
		}),
	)
}

func NewStore(ctx context.Context, cfg *config.Config, pg *db.PgTxManager) (service.Store, error) {
	switch cfg.Journal.Driver {
	case "postgres":
		if pg == nil {
			return nil, errNoPostgres
		}
		logger.Info("journal: postgres")
		return service.NewPostgres(ctx, pg)
	case "sqlite":
		logger.Info("journal: sqlite %s", cfg.Journal.Path)
		s, err := service.NewSQLite(ctx, cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		return s, nil
	default:
		logger.Info("journal: disabled")
		return service.Nop{}, nil
	}
}
