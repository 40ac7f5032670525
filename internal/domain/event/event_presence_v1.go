package event

import (
	"time"

	"github.com/google/uuid"
)

// NewDeviceOnline is emitted after a handshake admits a session.
// detail carries the remote address of the session.
func NewDeviceOnline(deviceID uuid.UUID, remoteIP string, at time.Time) *Record {
	r := newRecord(DeviceOnline, deviceID, at)
	r.Detail = remoteIP
	return r
}

// NewDeviceOffline is emitted only when the authoritative session ends,
// never for a superseded one.
func NewDeviceOffline(deviceID uuid.UUID, at time.Time) *Record {
	return newRecord(DeviceOffline, deviceID, at)
}
