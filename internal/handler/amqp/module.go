package amqp

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	infrapubsub "github.com/hadlocna/PaperDrop/infra/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		NewMessageHandler,
		NewWatermillRouter,
	),

	fx.Invoke(func(h *MessageHandler, router *message.Router, p infrapubsub.Provider) error {
		return h.RegisterHandlers(router, p.Subscriber())
	}),

	fx.Invoke(func(lc fx.Lifecycle, router *message.Router, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				errCh := make(chan error, 1)
				go func() {
					if err := router.Run(context.Background()); err != nil {
						logger.Error("EVENT_ROUTER_STOPPED", "err", err)
						errCh <- err
					}
				}()
				select {
				case <-router.Running():
					return nil
				case err := <-errCh:
					return err
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			OnStop: func(context.Context) error { return router.Close() },
		})
	}),
)
