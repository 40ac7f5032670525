package amqp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/hadlocna/PaperDrop/internal/adapter/pubsub"
	"github.com/hadlocna/PaperDrop/internal/domain/event"
	"github.com/hadlocna/PaperDrop/internal/service"
)

const (
	// ------------------- HANDLERS ------------------------------
	ActivityHandlerName = "ON_PAPERDROP_EVENT"

	// ------------------- TOPICS --------------------------------
	ActivityPoisonTopic = event.Topic + ".poison"
)

type MessageHandler struct {
	feed       service.ActivityRecorder
	logger     *slog.Logger
	wmLogger   watermill.LoggerAdapter
	dispatcher pubsub.EventDispatcher
}

func NewMessageHandler(feed service.ActivityRecorder, logger *slog.Logger, wmLogger watermill.LoggerAdapter, dispatcher pubsub.EventDispatcher) *MessageHandler {
	return &MessageHandler{
		feed:       feed,
		logger:     logger.With("component", "events"),
		wmLogger:   wmLogger,
		dispatcher: dispatcher,
	}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
}

// [REGISTRATION_PIPELINE]
func (h *MessageHandler) RegisterHandlers(router *message.Router, sub message.Subscriber) error {
	poison, err := middleware.PoisonQueue(h.dispatcher.Publisher(), ActivityPoisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{ActivityHandlerName, event.Topic, Bind(h, h.OnDeliveryEventV1)},
	}

	for _, c := range configs {
		// Outermost first: poison only sees errors that survived every retry,
		// and recovered panics count as errors.
		router.AddConsumerHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			poison,
			NewRetryMiddleware(h.wmLogger).Middleware,
			middleware.Recoverer,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("EVENT_PIPELINE_READY", "topic", event.Topic)
	return nil
}
