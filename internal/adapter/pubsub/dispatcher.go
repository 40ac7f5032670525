package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/hadlocna/PaperDrop/internal/domain/event"
	"go.opentelemetry.io/otel/trace"
)

// Metadata keys stamped on every published event.
const (
	MetaKind     = "kind"
	MetaDeviceID = "device_id"
	MetaTraceID  = "trace_id"
)

// EventDispatcher defines the high-level contract for outgoing events.
// This allows services to stay agnostic of the transport implementation.
type EventDispatcher interface {
	Publish(ctx context.Context, ev event.Eventer) error
	Publisher() message.Publisher
}

// eventDispatcher is the concrete implementation (private).
type eventDispatcher struct {
	publisher message.Publisher
}

// NewEventDispatcher returns the interface instead of the pointer to the struct.
func NewEventDispatcher(pub message.Publisher) EventDispatcher {
	return &eventDispatcher{
		publisher: pub,
	}
}

func (d *eventDispatcher) Publish(ctx context.Context, ev event.Eventer) error {
	if ev == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil event")
	}

	exp, ok := ev.(event.Exportable)
	if !ok || exp.GetTopic() == "" {
		return nil // [LOCAL_ONLY]
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaKind, string(ev.GetKind()))
	msg.Metadata.Set(MetaDeviceID, ev.GetDeviceID().String())
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata.Set(MetaTraceID, sc.TraceID().String())
	}
	msg.SetContext(ctx)

	if err := d.publisher.Publish(exp.GetTopic(), msg); err != nil {
		return fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", exp.GetTopic(), err)
	}

	return nil
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.publisher
}
