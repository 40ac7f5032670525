package scheduler

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(NewRedeliverer),
	fx.Invoke(func(lc fx.Lifecycle, r *Redeliverer) {
		var (
			cancel context.CancelFunc
			done   = make(chan struct{})
		)
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				var ctx context.Context
				ctx, cancel = context.WithCancel(context.Background())
				go func() {
					defer close(done)
					r.Run(ctx)
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				cancel()
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		})
	}),
)
