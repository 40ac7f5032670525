package service

import (
	"log/slog"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		// Domain services
		fx.Annotate(
			NewAuthService,
			fx.As(new(Auther)),
		),
		NewPresenceService,
		func(p *PresenceService) Presencer { return p },
		fx.Annotate(
			NewStatusService,
			fx.As(new(InboundHandler)),
		),
		fx.Annotate(
			NewMessagingService,
			fx.As(new(Messenger)),
		),
		NewDeliveryService,
		NewActivityFeed,
		func(f *ActivityFeed) ActivityReader { return f },
		func(f *ActivityFeed) ActivityRecorder { return f },

		// [DECORATION_LAYER] Every consumer of Dispatcher, inside or outside
		// this module, gets the logging decorator.
		func(s *DeliveryService, logger *slog.Logger) Dispatcher {
			return NewDispatchMiddleware(s, logger.With("component", "dispatch"))
		},
	),

	// [LIFECYCLE] Reset stale presence before the listener opens; on stop,
	// drain sessions while the store and the bus are still up.
	fx.Invoke(func(lc fx.Lifecycle, p *PresenceService) {
		lc.Append(fx.Hook{
			OnStart: p.Reconcile,
			OnStop:  p.Shutdown,
		})
	}),
)
