package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type MessageState string

const (
	MessageQueued  MessageState = "queued"
	MessageSent    MessageState = "sent"
	MessagePrinted MessageState = "printed"
	MessageError   MessageState = "error"
)

// IsTerminal reports whether no further transition is accepted.
func (s MessageState) IsTerminal() bool {
	return s == MessagePrinted || s == MessageError
}

// CanTransition encodes queued -> sent -> printed|error. Device feedback may
// arrive before the sent mark is persisted, so queued -> printed|error is allowed too.
func (s MessageState) CanTransition(to MessageState) bool {
	switch s {
	case MessageQueued:
		return to == MessageSent || to == MessagePrinted || to == MessageError
	case MessageSent:
		return to == MessagePrinted || to == MessageError
	default:
		return false
	}
}

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

func (c ContentType) Valid() bool {
	return c == ContentText || c == ContentImage
}

// [MESSAGE] CONTENT ADDRESSED TO ONE DEVICE
type Message struct {
	ID           uuid.UUID       `json:"id"`
	SenderID     uuid.UUID       `json:"sender_id"`
	SenderName   string          `json:"sender_name,omitempty"`
	DeviceID     uuid.UUID       `json:"device_id"`
	Content      json.RawMessage `json:"content"`
	ContentType  ContentType     `json:"content_type"`
	State        MessageState    `json:"status"`
	ScheduledAt  *time.Time      `json:"scheduled_at,omitempty"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
	PrintedAt    *time.Time      `json:"printed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// IsDue reports whether the redelivery loop should pick the message up at now.
func (m *Message) IsDue(now time.Time) bool {
	return m.State == MessageQueued && m.ScheduledAt != nil && !m.ScheduledAt.After(now)
}

// StateUpdate is a device-reported transition for a message.
type StateUpdate struct {
	MessageID uuid.UUID
	State     MessageState
	Error     string
	At        time.Time
}
