package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind names a state change published on the event bus.
type Kind string

const (
	DeviceOnline   Kind = "device.online"   // [PRESENCE]
	DeviceOffline  Kind = "device.offline"  // [PRESENCE]
	MessageSent    Kind = "message.sent"    // [DELIVERY]
	MessagePrinted Kind = "message.printed" // [DELIVERY]
	MessageError   Kind = "message.error"   // [DELIVERY]
)

// Topic carries every delivery and presence event.
const Topic = "paperdrop.events"

// Eventer defines the contract for all records flowing through the bus.
type Eventer interface {
	GetID() string
	GetKind() Kind
	GetDeviceID() uuid.UUID
	GetOccurredAt() int64
}

// Exportable defines an event that should be re-published to the message bus.
type Exportable interface {
	// An empty topic means the event stays local.
	GetTopic() string
}

// Record is the flat wire form of every event; consumers decode into it
// without knowing the concrete producer type.
type Record struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	DeviceID   uuid.UUID `json:"device_id"`
	MessageID  string    `json:"message_id,omitempty"`
	State      string    `json:"state,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt int64     `json:"occurred_at"`
}

func (r *Record) GetID() string          { return r.ID }
func (r *Record) GetKind() Kind          { return r.Kind }
func (r *Record) GetDeviceID() uuid.UUID { return r.DeviceID }
func (r *Record) GetOccurredAt() int64   { return r.OccurredAt }
func (r *Record) GetTopic() string       { return Topic }

var (
	_ Eventer    = (*Record)(nil)
	_ Exportable = (*Record)(nil)
)

func newRecord(kind Kind, deviceID uuid.UUID, at time.Time) *Record {
	return &Record{
		ID:         uuid.NewString(),
		Kind:       kind,
		DeviceID:   deviceID,
		OccurredAt: at.UnixMilli(),
	}
}
