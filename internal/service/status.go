package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/adapter/pubsub"
	"github.com/hadlocna/PaperDrop/internal/domain/event"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/domain/registry"
	wsmarshaller "github.com/hadlocna/PaperDrop/internal/handler/marshaller/ws"
	"github.com/hadlocna/PaperDrop/internal/metrics"
	"github.com/hadlocna/PaperDrop/internal/store"
)

// [INBOUND_HANDLER] DEVICE -> SERVER FRAMES
type InboundHandler interface {
	// HandleFrame never asks the caller to drop the connection. A returned
	// error means the store could not be reached and is for logging only.
	HandleFrame(ctx context.Context, conn registry.Connector, frame []byte) error
}

// Inbound outcomes reported to metrics.
const (
	inboundApplied   = "applied"
	inboundAck       = "ack"
	inboundIgnored   = "ignored"
	inboundDiscarded = "discarded"
	inboundError     = "error"
)

type StatusService struct {
	messages store.MessageStore
	presence Presencer
	metrics  *metrics.Metrics
	notify   notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewStatusService(st store.Store, presence Presencer, events pubsub.EventDispatcher, m *metrics.Metrics, logger *slog.Logger) *StatusService {
	logger = logger.With("component", "inbound")
	return &StatusService{
		messages: st,
		presence: presence,
		metrics:  m,
		notify:   notifier{events: events, logger: logger},
		logger:   logger,
		now:      time.Now,
	}
}

func (s *StatusService) HandleFrame(ctx context.Context, conn registry.Connector, frame []byte) error {
	env, err := wsmarshaller.ParseInbound(frame)
	switch {
	case errors.Is(err, model.ErrUnknownInboundType):
		s.metrics.ObserveInbound("unknown", inboundIgnored)
		s.logger.Info("[INBOUND] unknown frame type ignored", "device_id", conn.GetDeviceID(), "err", err)
		return nil
	case err != nil:
		s.metrics.ObserveInbound("malformed", inboundDiscarded)
		s.logger.Warn("[INBOUND] malformed frame discarded", "device_id", conn.GetDeviceID(), "err", err)
		return nil
	}

	switch e := env.(type) {
	case *model.PrintStatusEnvelope:
		return s.handlePrintStatus(ctx, conn, e)

	case *model.DeviceHelloEnvelope:
		s.logger.Info("[INBOUND] device hello",
			"device_id", conn.GetDeviceID(),
			"device_code", e.DeviceCode,
			"firmware_version", e.FirmwareVersion,
			"local_ip", e.LocalIP,
		)
		return s.touch(ctx, conn, e.GetType())

	case *model.PongEnvelope:
		return s.touch(ctx, conn, e.GetType())
	}

	return nil
}

func (s *StatusService) touch(ctx context.Context, conn registry.Connector, t model.EnvelopeType) error {
	if err := s.presence.Touch(ctx, conn); err != nil {
		s.metrics.ObserveInbound(string(t), inboundError)
		return err
	}
	s.metrics.ObserveInbound(string(t), inboundAck)
	return nil
}

func (s *StatusService) handlePrintStatus(ctx context.Context, conn registry.Connector, e *model.PrintStatusEnvelope) error {
	const kind = string(model.EnvelopePrintStatus)
	log := s.logger.With("device_id", conn.GetDeviceID(), "message_id", e.MessageID, "status", e.Status)

	state, ok := mapPrintStatus(e.Status)
	if !ok {
		s.metrics.ObserveInbound(kind, inboundDiscarded)
		log.Warn("[INBOUND] unrecognized print status discarded")
		return nil
	}
	if state == "" {
		s.metrics.ObserveInbound(kind, inboundAck)
		log.Debug("[INBOUND] print in progress")
		return nil
	}

	// Test prints report their request_id here; it never names a message.
	id, err := uuid.Parse(e.MessageID)
	if err != nil {
		s.metrics.ObserveInbound(kind, inboundIgnored)
		log.Info("[INBOUND] status for unknown message ignored")
		return nil
	}

	msg, err := s.messages.GetMessage(ctx, id)
	switch {
	case errors.Is(err, model.ErrMessageNotFound):
		s.metrics.ObserveInbound(kind, inboundIgnored)
		log.Info("[INBOUND] status for unknown message ignored")
		return nil
	case err != nil:
		s.metrics.ObserveInbound(kind, inboundError)
		return fmt.Errorf("inbound: load message %s: %w", id, err)
	}

	if msg.DeviceID != conn.GetDeviceID() {
		s.metrics.ObserveInbound(kind, inboundIgnored)
		log.Warn("[INBOUND] status for another device's message ignored", "owner_device_id", msg.DeviceID)
		return nil
	}

	update := model.StateUpdate{MessageID: id, State: state, At: s.reportedAt(e)}
	if e.Error != nil {
		update.Error = *e.Error
	}

	err = s.messages.UpdateMessageState(ctx, update)
	switch {
	case errors.Is(err, model.ErrInvalidTransition):
		// Duplicate or late report for a settled message.
		s.metrics.ObserveInbound(kind, inboundIgnored)
		log.Debug("[INBOUND] status ignored for settled message", "state", msg.State)
		return nil
	case err != nil:
		s.metrics.ObserveInbound(kind, inboundError)
		return fmt.Errorf("inbound: update message %s: %w", id, err)
	}

	s.metrics.ObserveInbound(kind, inboundApplied)
	s.notify.emit(ctx, event.NewMessageSettled(msg, update))
	return nil
}

// mapPrintStatus translates device vocabulary. An empty state with ok=true
// is an acknowledgement that changes nothing.
func mapPrintStatus(status string) (model.MessageState, bool) {
	switch strings.ToLower(status) {
	case "printed":
		return model.MessagePrinted, true
	case "failed", "error":
		return model.MessageError, true
	case "printing":
		return "", true
	default:
		return "", false
	}
}

func (s *StatusService) reportedAt(e *model.PrintStatusEnvelope) time.Time {
	if e.PrintedAt != "" {
		if t, err := time.Parse(time.RFC3339, e.PrintedAt); err == nil {
			return t
		}
	}
	return s.now()
}
