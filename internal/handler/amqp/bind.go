package amqp

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/adapter/pubsub"
)

// DomainHandler defines the functional signature for business logic.
type DomainHandler[T any] func(ctx context.Context, deviceID uuid.UUID, payload *T) error

// [INFRASTRUCTURE_BRIDGE]
// Bind connects Watermill to domain logic: identification, decoding and
// execution. Panics are left to the Recoverer middleware so they flow into
// the retry and poison policies.
func Bind[T any](h *MessageHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		// [IDENTIFICATION]
		deviceID, ok := resolveDeviceID(msg)
		if !ok {
			h.logger.Warn("ROUTING_FAILED: device_missing", "msg_id", msg.UUID)
			return nil // ACK: Invalid routing is a terminal state.
		}

		// [DECODING]
		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			h.logger.Error("DECODE_FAILED", "err", err, "msg_id", msg.UUID)
			return nil // ACK: Poison Pill protection.
		}

		// [EXECUTION] NACK on error triggers the retry policy.
		return fn(msg.Context(), deviceID, payload)
	}
}

func resolveDeviceID(msg *message.Message) (uuid.UUID, bool) {
	id, err := uuid.Parse(msg.Metadata.Get(pubsub.MetaDeviceID))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
