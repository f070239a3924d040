package main

import (
	"context"
	"log"

	"kite_guard/internal/modules/config"
	"kite_guard/internal/modules/health"
	"kite_guard/internal/modules/journal"
	kite_client "kite_guard/internal/modules/kite_client"
	kite_websocket "kite_guard/internal/modules/kite_websocket"
	"kite_guard/internal/modules/postgres"
	telegram "kite_guard/internal/modules/telegram_bot"
	"kite_guard/internal/runner"
	"kite_guard/pkg/logger"
	"kite_guard/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	app := fx.New(appOptions())
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}

func appOptions() fx.Option {
	return fx.Options(
		fx.Provide(
			// живёт, пока живёт приложение
			func(lc fx.Lifecycle) context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				lc.Append(fx.StopHook(cancel))
				return ctx
			},
		),
		config.Module(),
		fx.Invoke(setupObservability),
		postgres.Module(),
		journal.Module(),
		kite_client.Module(),
		kite_websocket.Module(),
		telegram.Module(),
		health.Module(),
		runner.Module(),
	)
}

func setupObservability(lc fx.Lifecycle, cfg *config.Config) error {
	if err := logger.Init(cfg.Service.Debug); err != nil {
		return err
	}
	logger.SetServiceName(cfg.Service.Name)
	tracing.SetServiceName(cfg.Service.Name)
	logger.Info("config:\n%s", cfg.Redacted())

	_, closer, err := tracing.InitTracer(tracing.Config{
		Enabled: cfg.Tracing.Enabled,
		Host:    cfg.Tracing.Host,
		Port:    cfg.Tracing.Port,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.StopHook(func() {
		closer()
		logger.Sync()
	}))
	return nil
}
