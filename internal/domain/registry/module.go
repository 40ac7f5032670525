package registry

import (
	"context"
	"log/slog"

	"github.com/hadlocna/PaperDrop/internal/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		// [CLEAN_INJECTION] Configure Hub using Functional Options
		func(logger *slog.Logger, m *metrics.Metrics) *Hub {
			return NewHub(
				WithLogger(logger),
				WithSizeObserver(m.SetConnectedDevices),
			)
		},
		fx.Annotate(
			func(h *Hub) Hubber { return h },
			fx.As(new(Hubber)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, h Hubber) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				h.Shutdown() // [GRACEFUL_SHUTDOWN] Close every device session
				return nil
			},
		})
	}),
)
