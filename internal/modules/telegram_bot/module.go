package telegram

import (
	"context"

	"kite_guard/internal/modules/config"
	"kite_guard/internal/modules/telegram_bot/service"
	"kite_guard/internal/notify"
	"kite_guard/internal/risk"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			service.NewTelegram,
			// без токена уведомления уходят в лог
			func(t *service.Telegram) notify.Sender {
				if t == nil {
					return notify.NewStdout()
				}
				return t
			},
			func(cfg *config.Config, s notify.Sender) *notify.Async {
				return notify.NewAsync(s, cfg.Telegram.Buffer)
			},
			func(a *notify.Async) risk.Notifier { return a },
		),
		fx.Invoke(
			func(lc fx.Lifecycle, appCtx context.Context, t *service.Telegram, a *notify.Async, e *risk.Engine) {
				t.SetStatusSource(e)
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						a.Start(appCtx)
						t.Start(appCtx)
						return nil
					},
					OnStop: func(context.Context) error {
						t.Stop()
						a.Stop()
						return nil
					},
				})
			},
		),
	)
}
