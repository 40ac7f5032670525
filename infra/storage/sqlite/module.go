package sqlite

import (
	"context"
	"log/slog"

	"github.com/hadlocna/PaperDrop/config"
	"github.com/hadlocna/PaperDrop/internal/store"
	"go.uber.org/fx"
)

var Module = fx.Module("sqlite-store",
	fx.Provide(
		func(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
			db, err := Open(context.Background(), cfg.Store.DSN)
			if err != nil {
				return nil, err
			}

			// [LIFECYCLE] Close the database after every consumer has stopped.
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return db.Close()
				},
			})

			return store.NewBreaker(db, store.BreakerSettings{
				MaxFailures: cfg.Store.Breaker.MaxFailures,
				OpenTimeout: cfg.Store.Breaker.OpenTimeout,
			}, logger), nil
		},
	),
)
