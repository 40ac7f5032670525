package service

import (
	"context"
	"log/slog"

	"github.com/hadlocna/PaperDrop/internal/adapter/pubsub"
	"github.com/hadlocna/PaperDrop/internal/domain/event"
)

// notifier publishes state-change events. A failed publish never fails the
// operation that produced the event.
type notifier struct {
	events pubsub.EventDispatcher
	logger *slog.Logger
}

func (n notifier) emit(ctx context.Context, ev event.Eventer) {
	if n.events == nil {
		return
	}
	if err := n.events.Publish(ctx, ev); err != nil {
		n.logger.Warn("[EVENTS] publish failed",
			"kind", ev.GetKind(),
			"device_id", ev.GetDeviceID(),
			"err", err,
		)
	}
}
