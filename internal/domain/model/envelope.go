package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EnvelopeType is the `type` discriminator carried by every frame on the device socket.
type EnvelopeType string

const (
	// [OUTBOUND] server -> device
	EnvelopeClaimed    EnvelopeType = "claimed"
	EnvelopeTestPrint  EnvelopeType = "test_print"
	EnvelopeNewMessage EnvelopeType = "new_message"
	EnvelopePrintJob   EnvelopeType = "print_job"

	// [INBOUND] device -> server
	EnvelopePrintStatus EnvelopeType = "print_status"
	EnvelopeDeviceHello EnvelopeType = "device_hello"
	EnvelopePong        EnvelopeType = "pong"
)

// Envelope is implemented by every typed frame exchanged with a device.
type Envelope interface {
	GetType() EnvelopeType
}

var (
	_ Envelope = (*ClaimedEnvelope)(nil)
	_ Envelope = (*TestPrintEnvelope)(nil)
	_ Envelope = (*NewMessageEnvelope)(nil)
	_ Envelope = (*PrintJobEnvelope)(nil)
	_ Envelope = (*PrintStatusEnvelope)(nil)
	_ Envelope = (*DeviceHelloEnvelope)(nil)
	_ Envelope = (*PongEnvelope)(nil)
)

type ClaimedEnvelope struct {
	Type      EnvelopeType `json:"type"`
	OwnerName string       `json:"owner_name,omitempty"`
}

func NewClaimedEnvelope(ownerName string) *ClaimedEnvelope {
	return &ClaimedEnvelope{Type: EnvelopeClaimed, OwnerName: ownerName}
}

func (e *ClaimedEnvelope) GetType() EnvelopeType { return e.Type }

type TestPrintEnvelope struct {
	Type      EnvelopeType `json:"type"`
	RequestID string       `json:"request_id"`
}

func NewTestPrintEnvelope(requestID string) *TestPrintEnvelope {
	return &TestPrintEnvelope{Type: EnvelopeTestPrint, RequestID: requestID}
}

func (e *TestPrintEnvelope) GetType() EnvelopeType { return e.Type }

// NewMessageBody keeps the camelCase field names the appliance firmware reads.
type NewMessageBody struct {
	ID          uuid.UUID       `json:"id"`
	Content     json.RawMessage `json:"content"`
	ContentType ContentType     `json:"contentType"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type NewMessageEnvelope struct {
	Type    EnvelopeType   `json:"type"`
	Message NewMessageBody `json:"message"`
}

func NewNewMessageEnvelope(m *Message) *NewMessageEnvelope {
	return &NewMessageEnvelope{
		Type: EnvelopeNewMessage,
		Message: NewMessageBody{
			ID:          m.ID,
			Content:     m.Content,
			ContentType: m.ContentType,
			CreatedAt:   m.CreatedAt,
		},
	}
}

func (e *NewMessageEnvelope) GetType() EnvelopeType { return e.Type }

type PrintJobEnvelope struct {
	Type        EnvelopeType    `json:"type"`
	MessageID   uuid.UUID       `json:"message_id"`
	ContentType ContentType     `json:"content_type"`
	Content     json.RawMessage `json:"content"`
	SenderName  string          `json:"sender_name"`
}

func NewPrintJobEnvelope(m *Message) *PrintJobEnvelope {
	return &PrintJobEnvelope{
		Type:        EnvelopePrintJob,
		MessageID:   m.ID,
		ContentType: m.ContentType,
		Content:     m.Content,
		SenderName:  m.SenderName,
	}
}

func (e *PrintJobEnvelope) GetType() EnvelopeType { return e.Type }

type PrintStatusEnvelope struct {
	Type      EnvelopeType `json:"type"`
	MessageID string       `json:"message_id"`
	Status    string       `json:"status"`
	Error     *string      `json:"error,omitempty"`
	PrintedAt string       `json:"printed_at,omitempty"`
}

func (e *PrintStatusEnvelope) GetType() EnvelopeType { return e.Type }

type DeviceHelloEnvelope struct {
	Type            EnvelopeType `json:"type"`
	DeviceCode      string       `json:"device_code"`
	FirmwareVersion string       `json:"firmware_version"`
	LocalIP         string       `json:"local_ip"`
}

func (e *DeviceHelloEnvelope) GetType() EnvelopeType { return e.Type }

type PongEnvelope struct {
	Type EnvelopeType `json:"type"`
}

func (e *PongEnvelope) GetType() EnvelopeType { return e.Type }

// DispatchResult is the outcome of pushing an envelope to a device.
// Offline is an expected outcome, not an error.
type DispatchResult int8

const (
	Offline DispatchResult = iota
	Delivered
)

func (r DispatchResult) String() string {
	if r == Delivered {
		return "delivered"
	}
	return "offline"
}
