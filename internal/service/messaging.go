package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/adapter/pubsub"
	"github.com/hadlocna/PaperDrop/internal/domain/event"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/store"
)

type SendMessageRequest struct {
	SenderID    uuid.UUID         `json:"sender_id"`
	DeviceID    uuid.UUID         `json:"device_id"`
	Content     json.RawMessage   `json:"content"`
	ContentType model.ContentType `json:"content_type"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
}

func (r SendMessageRequest) validate() error {
	switch {
	case r.SenderID == uuid.Nil:
		return fmt.Errorf("%w: sender_id is required", model.ErrInvalidRequest)
	case r.DeviceID == uuid.Nil:
		return fmt.Errorf("%w: device_id is required", model.ErrInvalidRequest)
	case !r.ContentType.Valid():
		return fmt.Errorf("%w: content_type must be text or image", model.ErrInvalidRequest)
	case len(r.Content) == 0 || !json.Valid(r.Content):
		return fmt.Errorf("%w: content must be a JSON value", model.ErrInvalidRequest)
	}
	return nil
}

type ClaimRequest struct {
	DeviceCode string    `json:"device_code"`
	UserID     uuid.UUID `json:"user_id"`
	OwnerName  string    `json:"owner_name,omitempty"`
}

// DeviceView is a stored device plus its live registry state.
type DeviceView struct {
	*model.Device
	Online bool `json:"online"`
}

// [MESSAGING_SERVICE] OPERATIONS BEHIND THE HTTP API
type Messenger interface {
	// SendMessage stores a queued message. Unscheduled messages are pushed
	// at once and come back sent when the device took them.
	SendMessage(ctx context.Context, req SendMessageRequest) (*model.Message, error)
	TestPrint(ctx context.Context, deviceID uuid.UUID) (string, model.DispatchResult, error)
	ClaimDevice(ctx context.Context, req ClaimRequest) (*model.Device, model.DispatchResult, error)
	GetDevice(ctx context.Context, deviceID uuid.UUID) (*DeviceView, error)
}

type MessagingService struct {
	store      store.Store
	dispatcher Dispatcher
	presence   Presencer
	notify     notifier
	logger     *slog.Logger
	now        func() time.Time
}

func NewMessagingService(st store.Store, dispatcher Dispatcher, presence Presencer, events pubsub.EventDispatcher, logger *slog.Logger) *MessagingService {
	logger = logger.With("component", "messaging")
	return &MessagingService{
		store:      st,
		dispatcher: dispatcher,
		presence:   presence,
		notify:     notifier{events: events, logger: logger},
		logger:     logger,
		now:        time.Now,
	}
}

func (s *MessagingService) SendMessage(ctx context.Context, req SendMessageRequest) (*model.Message, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetDevice(ctx, req.DeviceID); err != nil {
		return nil, fmt.Errorf("messaging: target device: %w", err)
	}

	now := s.now()
	msg := &model.Message{
		ID:          uuid.New(),
		SenderID:    req.SenderID,
		DeviceID:    req.DeviceID,
		Content:     req.Content,
		ContentType: req.ContentType,
		State:       model.MessageQueued,
		CreatedAt:   now,
	}

	if req.ScheduledAt != nil && req.ScheduledAt.After(now) {
		at := req.ScheduledAt.UTC()
		msg.ScheduledAt = &at
		if err := s.store.CreateMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("messaging: create message: %w", err)
		}
		return msg, nil
	}

	// Unscheduled while the push is in flight, so the redelivery loop cannot
	// pick the same message up concurrently.
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("messaging: create message: %w", err)
	}

	res, err := s.dispatcher.Dispatch(ctx, msg.DeviceID, model.NewNewMessageEnvelope(msg))
	if err != nil {
		return nil, fmt.Errorf("messaging: dispatch %s: %w", msg.ID, err)
	}
	if res == model.Offline {
		return s.scheduleFallback(ctx, msg, now)
	}

	return s.markSent(ctx, msg)
}

// scheduleFallback makes an undelivered immediate message due at once, so the
// redelivery loop pushes it when the device reconnects.
func (s *MessagingService) scheduleFallback(ctx context.Context, msg *model.Message, at time.Time) (*model.Message, error) {
	err := s.store.ScheduleMessage(ctx, msg.ID, at)
	switch {
	case err == nil:
		msg.ScheduledAt = &at
		return msg, nil

	case errors.Is(err, model.ErrInvalidTransition):
		return s.store.GetMessage(ctx, msg.ID)

	default:
		return nil, fmt.Errorf("messaging: schedule %s: %w", msg.ID, err)
	}
}

func (s *MessagingService) markSent(ctx context.Context, msg *model.Message) (*model.Message, error) {
	sentAt := s.now()
	err := s.store.MarkMessageSent(ctx, msg.ID, sentAt)
	switch {
	case err == nil:
		msg.State = model.MessageSent
		msg.SentAt = &sentAt
		s.notify.emit(ctx, event.NewMessageSent(msg, sentAt))
		return msg, nil

	case errors.Is(err, model.ErrInvalidTransition):
		// The device reported back before the sent mark landed.
		return s.store.GetMessage(ctx, msg.ID)

	default:
		return nil, fmt.Errorf("messaging: mark %s sent: %w", msg.ID, err)
	}
}

func (s *MessagingService) TestPrint(ctx context.Context, deviceID uuid.UUID) (string, model.DispatchResult, error) {
	if _, err := s.store.GetDevice(ctx, deviceID); err != nil {
		return "", model.Offline, fmt.Errorf("messaging: test print: %w", err)
	}

	requestID := uuid.NewString()
	res, err := s.dispatcher.Dispatch(ctx, deviceID, model.NewTestPrintEnvelope(requestID))
	if err != nil {
		return "", model.Offline, fmt.Errorf("messaging: test print: %w", err)
	}
	return requestID, res, nil
}

func (s *MessagingService) ClaimDevice(ctx context.Context, req ClaimRequest) (*model.Device, model.DispatchResult, error) {
	if req.DeviceCode == "" || req.UserID == uuid.Nil {
		return nil, model.Offline, fmt.Errorf("%w: device_code and user_id are required", model.ErrInvalidRequest)
	}

	device, err := s.store.GetDeviceByPairingCode(ctx, req.DeviceCode)
	if err != nil {
		return nil, model.Offline, fmt.Errorf("messaging: claim: %w", err)
	}
	if err := s.store.ClaimDevice(ctx, device.ID, req.UserID); err != nil {
		return nil, model.Offline, fmt.Errorf("messaging: claim: %w", err)
	}
	owner := req.UserID
	device.OwnerID = &owner

	ownerName := s.ownerName(ctx, req)
	res, err := s.dispatcher.Dispatch(ctx, device.ID, model.NewClaimedEnvelope(ownerName))
	if err != nil {
		return device, model.Offline, fmt.Errorf("messaging: claimed notice: %w", err)
	}
	return device, res, nil
}

// ownerName records a supplied display name or falls back to the stored one.
func (s *MessagingService) ownerName(ctx context.Context, req ClaimRequest) string {
	if req.OwnerName != "" {
		if err := s.store.PutUser(ctx, &model.User{ID: req.UserID, Name: req.OwnerName}); err != nil {
			s.logger.Warn("[CLAIM] owner name not stored", "user_id", req.UserID, "err", err)
		}
		return req.OwnerName
	}

	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		return ""
	}
	return user.Name
}

func (s *MessagingService) GetDevice(ctx context.Context, deviceID uuid.UUID) (*DeviceView, error) {
	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("messaging: get device: %w", err)
	}
	return &DeviceView{Device: device, Online: s.presence.IsOnline(deviceID)}, nil
}
