package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/config"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/domain/registry"
	wsmarshaller "github.com/hadlocna/PaperDrop/internal/handler/marshaller/ws"
	"github.com/hadlocna/PaperDrop/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// [DELIVERY_SERVICE] PRIMARY INTERFACE FOR EVERY CALLER THAT PUSHES TO A DEVICE
type Dispatcher interface {
	// Dispatch pushes env to the device's live session. Offline is an
	// expected outcome and comes with a nil error.
	Dispatch(ctx context.Context, deviceID uuid.UUID, env model.Envelope) (model.DispatchResult, error)
}

type DeliveryService struct {
	hub         registry.Hubber
	sendTimeout time.Duration
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

// NewDeliveryService returns a production-ready instance of the service.
func NewDeliveryService(hub registry.Hubber, cfg *config.Config, m *metrics.Metrics, tracer trace.Tracer) *DeliveryService {
	return &DeliveryService{
		hub:         hub,
		sendTimeout: cfg.WS.SendTimeout,
		metrics:     m,
		tracer:      tracer,
	}
}

func (s *DeliveryService) Dispatch(ctx context.Context, deviceID uuid.UUID, env model.Envelope) (model.DispatchResult, error) {
	envType := string(env.GetType())

	_, span := s.tracer.Start(ctx, "delivery.dispatch", trace.WithAttributes(
		attribute.String("device.id", deviceID.String()),
		attribute.String("envelope.type", envType),
	))
	defer span.End()

	conn, ok := s.hub.Lookup(deviceID)
	if !ok {
		return s.finish(span, envType, model.Offline), nil
	}

	frame, err := wsmarshaller.Marshal(env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		s.metrics.ObserveDispatch(envType, "error")
		return model.Offline, err
	}

	// [BOUNDED_WRITE] A stalled peer costs at most sendTimeout.
	if !conn.Send(frame, s.sendTimeout) {
		return s.finish(span, envType, model.Offline), nil
	}
	return s.finish(span, envType, model.Delivered), nil
}

func (s *DeliveryService) finish(span trace.Span, envType string, res model.DispatchResult) model.DispatchResult {
	span.SetAttributes(attribute.String("dispatch.result", res.String()))
	s.metrics.ObserveDispatch(envType, res.String())
	return res
}
