package model

import "time"

// HubStats is the health snapshot of the connection registry.
type HubStats struct {
	ConnectedDevices int           `json:"connected_devices"`
	Uptime           time.Duration `json:"uptime"`
}
