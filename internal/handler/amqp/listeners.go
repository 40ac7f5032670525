package amqp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/event"
)

// [ON_DELIVERY_EVENT]
// Records presence and delivery events in the activity feed.
func (h *MessageHandler) OnDeliveryEventV1(ctx context.Context, deviceID uuid.UUID, rec *event.Record) error {
	if rec.ID == "" || rec.Kind == "" {
		return fmt.Errorf("incomplete event record for device %s", deviceID)
	}
	if rec.DeviceID != deviceID {
		h.logger.Warn("EVENT_DEVICE_MISMATCH", "metadata_device_id", deviceID, "record_device_id", rec.DeviceID)
	}

	h.feed.Record(*rec)
	h.logger.Debug("ACTIVITY_RECORDED",
		"kind", rec.Kind,
		"device_id", rec.DeviceID,
		"trace_id", TraceIDFromContext(ctx),
	)
	return nil
}
