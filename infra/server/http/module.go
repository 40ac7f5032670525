package httpsrv

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("http-server",
	fx.Provide(
		NewRouter,
		NewServer,
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Server) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { return s.Start() },
			OnStop:  s.Stop,
		})
	}),
)
