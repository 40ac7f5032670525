package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
)

// DispatchMiddleware implements [DECORATOR_PATTERN] to add observability
// to dispatch without touching delivery logic.
type DispatchMiddleware struct {
	Next   Dispatcher
	Logger *slog.Logger
}

// NewDispatchMiddleware creates a new logging decorator for the Dispatcher.
func NewDispatchMiddleware(next Dispatcher, logger *slog.Logger) Dispatcher {
	return &DispatchMiddleware{
		Next:   next,
		Logger: logger,
	}
}

func (m *DispatchMiddleware) Dispatch(ctx context.Context, deviceID uuid.UUID, env model.Envelope) (model.DispatchResult, error) {
	start := time.Now()

	res, err := m.Next.Dispatch(ctx, deviceID, env)

	duration := time.Since(start)
	switch {
	case err != nil:
		m.Logger.Error("[DISPATCH] failed",
			"device_id", deviceID,
			"type", env.GetType(),
			"err", err,
			"duration_ms", duration.Milliseconds(),
		)
	case res == model.Offline:
		m.Logger.Debug("[DISPATCH] device offline",
			"device_id", deviceID,
			"type", env.GetType(),
			"duration_ms", duration.Milliseconds(),
		)
	default:
		m.Logger.Debug("[DISPATCH] delivered",
			"device_id", deviceID,
			"type", env.GetType(),
			"duration_ms", duration.Milliseconds(),
		)
	}

	return res, err
}
