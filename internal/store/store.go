// Package store defines the durable record store consumed by the delivery core.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
)

type DeviceStore interface {
	// GetDeviceByPairingCode returns model.ErrDeviceNotFound when the code is unknown.
	GetDeviceByPairingCode(ctx context.Context, code string) (*model.Device, error)
	GetDevice(ctx context.Context, id uuid.UUID) (*model.Device, error)
	// CreateDevice returns model.ErrDuplicatePairingCode if the code is taken.
	CreateDevice(ctx context.Context, device *model.Device) error
	UpdateDevicePresence(ctx context.Context, id uuid.UUID, status model.DeviceStatus, lastSeen time.Time) error
	TouchDevice(ctx context.Context, id uuid.UUID, lastSeen time.Time) error
	// ClaimDevice returns model.ErrDeviceAlreadyClaimed if an owner is already set.
	ClaimDevice(ctx context.Context, id, ownerID uuid.UUID) error
	// ResetPresence flips every online device offline and returns how many
	// changed. Used at boot, when no session can be live yet.
	ResetPresence(ctx context.Context, at time.Time) (int, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error)
	// GetDueScheduledMessages lists queued messages whose scheduled time is set and not after now.
	GetDueScheduledMessages(ctx context.Context, now time.Time) ([]*model.Message, error)
	// MarkMessageSent moves a queued message to sent; any other state yields model.ErrInvalidTransition.
	MarkMessageSent(ctx context.Context, id uuid.UUID, at time.Time) error
	// ScheduleMessage sets the scheduled time of a queued message that has none;
	// any other message yields model.ErrInvalidTransition.
	ScheduleMessage(ctx context.Context, id uuid.UUID, at time.Time) error
	// UpdateMessageState applies device feedback; terminal states never regress.
	UpdateMessageState(ctx context.Context, update model.StateUpdate) error
}

type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	PutUser(ctx context.Context, user *model.User) error
}

type Store interface {
	DeviceStore
	MessageStore
	UserStore
	Close() error
}
