package event

import (
	"time"

	"github.com/hadlocna/PaperDrop/internal/domain/model"
)

// NewMessageSent is emitted once a message reaches the device socket.
func NewMessageSent(m *model.Message, at time.Time) *Record {
	r := newRecord(MessageSent, m.DeviceID, at)
	r.MessageID = m.ID.String()
	r.State = string(model.MessageSent)
	return r
}

// NewMessageSettled maps a device-reported terminal state to its event.
func NewMessageSettled(m *model.Message, update model.StateUpdate) *Record {
	kind := MessagePrinted
	if update.State == model.MessageError {
		kind = MessageError
	}

	r := newRecord(kind, m.DeviceID, update.At)
	r.MessageID = m.ID.String()
	r.State = string(update.State)
	r.Detail = update.Error
	return r
}
