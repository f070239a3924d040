package runner

import (
	"context"
	"fmt"

	"kite_guard/internal/modules/config"
	health "kite_guard/internal/modules/health/service"
	journal "kite_guard/internal/modules/journal/service"
	"kite_guard/internal/risk"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewEngine,
			func(g *journal.Guard) RunGuard { return g },
			func(
				cfg *config.Config,
				engine *risk.Engine,
				source PositionSource,
				f Feed,
				state *health.State,
				guard RunGuard,
				notifier risk.Notifier,
			) *Session {
				return NewSession(Settings{
					Exchange:         cfg.Kite.Exchange,
					PositionsRefresh: cfg.Risk.PositionsRefresh,
					OrdersRefresh:    cfg.Risk.OrdersRefresh,
					Force:            cfg.Journal.Force,
				}, engine, source, f, state, guard, notifier)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, appCtx context.Context, s *Session) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					return s.Start(appCtx)
				},
				OnStop: func(ctx context.Context) error {
					return s.Stop(ctx)
				},
			})
		}),
	)
}

// NewEngine собирает движок риска из конфига.
func NewEngine(
	cfg *config.Config,
	gateway risk.OrderGateway,
	notifier risk.Notifier,
	j risk.Journal,
) (*risk.Engine, error) {
	p := cfg.Risk.Policy
	policy, err := risk.NewPolicy(risk.PolicyConfig{
		Kind:            p.Kind,
		StopLoss:        p.StopLoss,
		TrailTrigger:    p.TrailTrigger,
		TrailGap:        p.TrailGap,
		StopLossPct:     p.StopLossPct,
		TrailTriggerPct: p.TrailTriggerPct,
		TrailGapPct:     p.TrailGapPct,
	})
	if err != nil {
		return nil, err
	}

	engineCfg := risk.Config{
		EvalInterval: cfg.Risk.EvalInterval,
		ExitProduct:  cfg.Kite.Product,
	}
	if cfg.Session.Enabled {
		w, err := risk.ParseTradingWindow(cfg.Session.Open, cfg.Session.Close, cfg.Session.Timezone)
		if err != nil {
			return nil, fmt.Errorf("session window: %w", err)
		}
		engineCfg.Window = w
	}

	return risk.NewEngine(engineCfg, policy, gateway,
		risk.WithNotifier(notifier),
		risk.WithJournal(j),
	)
}
