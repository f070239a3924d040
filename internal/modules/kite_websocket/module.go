package kite_websocket

import (
	"kite_guard/internal/modules/kite_websocket/service"
	"kite_guard/internal/runner"

	"go.uber.org/fx"
)

// Module поднимает клиент тикера. Run запускает runner со своим Handler.
func Module() fx.Option {
	return fx.Module("kite_websocket",
		fx.Provide(
			service.NewClient,
			func(c *service.Client) runner.Feed { return c },
		),
	)
}
