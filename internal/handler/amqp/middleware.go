package amqp

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/adapter/pubsub"
)

type traceIDKey struct{}

// TraceIDFromContext returns the id set by TraceIDMiddleware.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// [TRACE_ID_MIDDLEWARE]
// Ensures TraceID persistence through the call chain.
func TraceIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		traceID := msg.Metadata.Get(pubsub.MetaTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
			msg.Metadata.Set(pubsub.MetaTraceID, traceID)
		}

		ctx := context.WithValue(msg.Context(), traceIDKey{}, traceID)
		msg.SetContext(ctx)

		return h(msg)
	}
}

// [LOGGING_MIDDLEWARE]
// One line per activity event, keyed by the device it concerns.
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			attrs := []any{
				"msg_id", msg.UUID,
				"kind", msg.Metadata.Get(pubsub.MetaKind),
				"device_id", msg.Metadata.Get(pubsub.MetaDeviceID),
				"trace_id", msg.Metadata.Get(pubsub.MetaTraceID),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.Warn("ACTIVITY_EVENT_FAILED", append(attrs, "err", err)...)
				return msgs, err
			}
			logger.Debug("ACTIVITY_EVENT_HANDLED", attrs...)
			return msgs, nil
		}
	}
}

// [RETRY_MIDDLEWARE]
func NewRetryMiddleware(logger watermill.LoggerAdapter) middleware.Retry {
	return middleware.Retry{
		MaxRetries:      3,
		InitialInterval: time.Millisecond * 100,
		MaxInterval:     time.Second * 2,
		Multiplier:      2.0,
		Logger:          logger,
	}
}
