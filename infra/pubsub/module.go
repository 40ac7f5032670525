package pubsub

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

var Module = fx.Module("pubsub",
	fx.Provide(NewProvider),
	fx.Invoke(func(lc fx.Lifecycle, p Provider, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				logger.Info("[PUBSUB] event bus ready", "driver", p.Driver())
				return nil
			},
			OnStop: func(context.Context) error { return p.Close() },
		})
	}),
)
