package model

import (
	"time"

	"github.com/google/uuid"
)

type DeviceStatus string

const (
	DeviceOnline       DeviceStatus = "online"
	DeviceOffline      DeviceStatus = "offline"
	DeviceSetupPending DeviceStatus = "setup_pending"
)

// DefaultFriendlyName is assigned to devices provisioned on first contact.
const DefaultFriendlyName = "New Printer"

// [DEVICE] PHYSICAL PRINT APPLIANCE KNOWN TO THE BACKEND
type Device struct {
	ID           uuid.UUID    `json:"id"`
	PairingCode  string       `json:"device_code"`
	Secret       string       `json:"-"`
	FriendlyName string       `json:"friendly_name"`
	Status       DeviceStatus `json:"status"`
	LastSeenAt   time.Time    `json:"last_seen_at"`
	OwnerID      *uuid.UUID   `json:"owner_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NewDevice builds a record for a pairing code that has never been seen before.
func NewDevice(code, secret string, status DeviceStatus, now time.Time) *Device {
	return &Device{
		ID:           uuid.New(),
		PairingCode:  code,
		Secret:       secret,
		FriendlyName: DefaultFriendlyName,
		Status:       status,
		LastSeenAt:   now,
		CreatedAt:    now,
	}
}

func (d *Device) IsClaimed() bool { return d.OwnerID != nil }

// User is the minimal sender/owner projection the delivery core needs.
type User struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
