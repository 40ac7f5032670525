package cmd

import (
	"log/slog"

	"github.com/hadlocna/PaperDrop/config"
	infrapubsub "github.com/hadlocna/PaperDrop/infra/pubsub"
	httpsrv "github.com/hadlocna/PaperDrop/infra/server/http"
	"github.com/hadlocna/PaperDrop/infra/storage/sqlite"
	"github.com/hadlocna/PaperDrop/infra/tracing"
	"github.com/hadlocna/PaperDrop/internal/adapter/pubsub"
	"github.com/hadlocna/PaperDrop/internal/domain/registry"
	amqpdi "github.com/hadlocna/PaperDrop/internal/handler/amqp"
	"github.com/hadlocna/PaperDrop/internal/handler/api"
	"github.com/hadlocna/PaperDrop/internal/handler/ws"
	"github.com/hadlocna/PaperDrop/internal/metrics"
	"github.com/hadlocna/PaperDrop/internal/scheduler"
	"github.com/hadlocna/PaperDrop/internal/service"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func NewApp(cfg *config.Config, logger *slog.Logger) *fx.App {
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
		fx.Supply(
			cfg,
			logger,
			tracing.ServiceName(ServiceName),
		),
		fx.Provide(ProvideWatermillLogger),

		// [INFRA]
		metrics.Module,
		tracing.Module,
		sqlite.Module,
		infrapubsub.Module,

		// [DOMAIN]
		registry.Module,
		pubsub.Module,
		service.Module,
		scheduler.Module,

		// [TRANSPORT]
		ws.Module,
		api.Module,
		amqpdi.Module,
		httpsrv.Module,
	)
}
