package kite_client

import (
	"kite_guard/internal/modules/kite_client/service"
	"kite_guard/internal/risk"
	"kite_guard/internal/runner"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("kite_client",
		fx.Provide(
			service.NewClient,
			func(c *service.Client) risk.OrderGateway { return c },
			func(c *service.Client) runner.PositionSource { return c },
		),
	)
}
