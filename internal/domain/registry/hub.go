/*
Package registry holds the in-memory map from device identity to its live socket session.

Key rules:
  - Last registration wins: registering a device that already has a session
    replaces the entry and closes the superseded session.
  - Stale-disconnect guard: Unregister removes the entry only when the stored
    Connector is the exact handle passed in, so a late disconnect of an old
    session cannot evict a newer one.
  - Lookups are lock-free (sync.Map) and never block on I/O, so dispatch reads
    are not starved by connection churn.

Registry state does not survive a restart; devices repopulate it on reconnect.
*/
package registry

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
)

// Hubber defines the gateway for device session management and lookup.
type Hubber interface {
	Register(conn Connector) (superseded Connector)
	Unregister(conn Connector) bool
	Lookup(deviceID uuid.UUID) (Connector, bool)
	IsConnected(deviceID uuid.UUID) bool
	Stats() model.HubStats
	Shutdown()
}

var _ Hubber = (*Hub)(nil)

type hubConfig struct {
	logger       *slog.Logger
	sizeObserver func(int)
}

// Hub implements the [DEVICE_REGISTRY]: at most one Connector per device id.
type Hub struct {
	// conns stores map[uuid.UUID]Connector. Optimized for [READ_HEAVY] workloads.
	conns     sync.Map
	size      atomic.Int64
	startedAt time.Time
	config    hubConfig
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		startedAt: time.Now(),
		config: hubConfig{
			logger:       slog.Default(),
			sizeObserver: func(int) {},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register stores conn as the authoritative session of its device and returns
// the session it superseded, if any. The superseded session is closed.
func (h *Hub) Register(conn Connector) Connector {
	deviceID := conn.GetDeviceID()

	prev, loaded := h.conns.Swap(deviceID, conn)
	if !loaded {
		h.observe(h.size.Add(1))
		return nil
	}

	old, ok := prev.(Connector)
	if !ok || old == conn {
		return nil
	}

	// [SUPERSESSION] The old socket learns about it through Done().
	old.Close()
	h.config.logger.Info("[HUB] session superseded",
		slog.String("device_id", deviceID.String()),
		slog.String("old_conn_id", old.GetID().String()),
		slog.String("new_conn_id", conn.GetID().String()),
	)
	return old
}

// Unregister removes conn only if it is still the registered session.
func (h *Hub) Unregister(conn Connector) bool {
	if !h.conns.CompareAndDelete(conn.GetDeviceID(), conn) {
		return false
	}
	h.observe(h.size.Add(-1))
	return true
}

func (h *Hub) Lookup(deviceID uuid.UUID) (Connector, bool) {
	val, ok := h.conns.Load(deviceID)
	if !ok {
		return nil, false
	}
	conn, ok := val.(Connector)
	return conn, ok
}

func (h *Hub) IsConnected(deviceID uuid.UUID) bool {
	_, ok := h.conns.Load(deviceID)
	return ok
}

func (h *Hub) Stats() model.HubStats {
	return model.HubStats{
		ConnectedDevices: int(h.size.Load()),
		Uptime:           time.Since(h.startedAt),
	}
}

// Shutdown closes every registered session. Socket handlers then run their
// normal disconnect path.
func (h *Hub) Shutdown() {
	h.conns.Range(func(_, val any) bool {
		if conn, ok := val.(Connector); ok {
			conn.Close()
		}
		return true
	})
}

func (h *Hub) observe(n int64) {
	h.config.sizeObserver(int(n))
}
