package api

import "go.uber.org/fx"

var Module = fx.Module("api-handler",
	fx.Provide(NewAPIHandler),
)
