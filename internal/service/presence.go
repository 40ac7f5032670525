package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/adapter/pubsub"
	"github.com/hadlocna/PaperDrop/internal/domain/event"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/domain/registry"
	"github.com/hadlocna/PaperDrop/internal/store"
)

// [PRESENCE_SERVICE] COUPLES REGISTRY MEMBERSHIP TO THE DURABLE ONLINE FLAG
type Presencer interface {
	// Connect marks the device online and makes conn its authoritative session.
	Connect(ctx context.Context, device *model.Device, conn registry.Connector) error
	// Disconnect closes conn. It flips the device offline only when conn was
	// still authoritative and reports whether it was.
	Disconnect(ctx context.Context, conn registry.Connector) (bool, error)
	// Touch refreshes last-seen for a live session.
	Touch(ctx context.Context, conn registry.Connector) error
	IsOnline(deviceID uuid.UUID) bool
}

type PresenceService struct {
	hub     registry.Hubber
	devices store.DeviceStore
	locks   *stripedLock
	notify  notifier
	logger  *slog.Logger
	now     func() time.Time

	// [SESSION_TRACKING] Admitted sessions whose offline bookkeeping has not
	// finished yet; Shutdown waits on them before the store goes away.
	live     sync.Map // conn id -> struct{}
	sessions sync.WaitGroup
}

func NewPresenceService(hub registry.Hubber, st store.Store, events pubsub.EventDispatcher, logger *slog.Logger) *PresenceService {
	logger = logger.With("component", "presence")
	return &PresenceService{
		hub:     hub,
		devices: st,
		locks:   newStripedLock(defaultStripes),
		notify:  notifier{events: events, logger: logger},
		logger:  logger,
		now:     time.Now,
	}
}

// Register+online and unregister+offline for one device run under the same
// stripe, so a late disconnect can never overwrite the status of a newer session.
func (s *PresenceService) Connect(ctx context.Context, device *model.Device, conn registry.Connector) error {
	unlock := s.locks.Lock(device.ID.String())
	defer unlock()

	now := s.now()
	if err := s.devices.UpdateDevicePresence(ctx, device.ID, model.DeviceOnline, now); err != nil {
		return fmt.Errorf("presence: mark %s online: %w", device.ID, err)
	}

	// [SUPERSESSION] The hub closes and logs any previous session.
	s.hub.Register(conn)
	if _, loaded := s.live.LoadOrStore(conn.GetID(), struct{}{}); !loaded {
		s.sessions.Add(1)
	}

	s.notify.emit(ctx, event.NewDeviceOnline(device.ID, conn.Metadata().RemoteIP, now))
	return nil
}

func (s *PresenceService) Disconnect(ctx context.Context, conn registry.Connector) (bool, error) {
	deviceID := conn.GetDeviceID()

	unlock := s.locks.Lock(deviceID.String())
	defer unlock()

	defer conn.Close()
	defer s.release(conn)

	if !s.hub.Unregister(conn) {
		// [STALE_GUARD] A newer session owns the device now.
		s.logger.Debug("[PRESENCE] stale disconnect ignored",
			"device_id", deviceID,
			"conn_id", conn.GetID(),
		)
		return false, nil
	}

	now := s.now()
	if err := s.devices.UpdateDevicePresence(ctx, deviceID, model.DeviceOffline, now); err != nil {
		return true, fmt.Errorf("presence: mark %s offline: %w", deviceID, err)
	}

	s.notify.emit(ctx, event.NewDeviceOffline(deviceID, now))
	return true, nil
}

func (s *PresenceService) release(conn registry.Connector) {
	if _, ok := s.live.LoadAndDelete(conn.GetID()); ok {
		s.sessions.Done()
	}
}

// Reconcile clears online flags left behind by a previous process. The
// registry starts empty, so no stored device can be connected yet.
func (s *PresenceService) Reconcile(ctx context.Context) error {
	n, err := s.devices.ResetPresence(ctx, s.now())
	if err != nil {
		return fmt.Errorf("presence: reconcile: %w", err)
	}
	if n > 0 {
		s.logger.Info("[PRESENCE] stale online devices reset", "count", n)
	}
	return nil
}

// Shutdown closes every session and waits until each one has recorded its
// device offline, or ctx ends.
func (s *PresenceService) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("presence: drain sessions: %w", ctx.Err())
	}
}

func (s *PresenceService) Touch(ctx context.Context, conn registry.Connector) error {
	conn.Touch()
	if err := s.devices.TouchDevice(ctx, conn.GetDeviceID(), s.now()); err != nil {
		return fmt.Errorf("presence: touch %s: %w", conn.GetDeviceID(), err)
	}
	return nil
}

func (s *PresenceService) IsOnline(deviceID uuid.UUID) bool {
	return s.hub.IsConnected(deviceID)
}
