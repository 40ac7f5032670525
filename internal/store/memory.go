package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
)

var _ Store = (*memoryStore)(nil)

type memoryStore struct {
	mu       sync.RWMutex
	devices  map[uuid.UUID]*model.Device
	byCode   map[string]uuid.UUID
	messages map[uuid.UUID]*model.Message
	users    map[uuid.UUID]*model.User
}

// NewMemoryStore returns a process-local Store. State is lost on restart.
func NewMemoryStore() Store {
	return &memoryStore{
		devices:  make(map[uuid.UUID]*model.Device),
		byCode:   make(map[string]uuid.UUID),
		messages: make(map[uuid.UUID]*model.Message),
		users:    make(map[uuid.UUID]*model.User),
	}
}

func (s *memoryStore) GetDeviceByPairingCode(_ context.Context, code string) (*model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, model.ErrDeviceNotFound
	}
	return copyDevice(s.devices[id]), nil
}

func (s *memoryStore) GetDevice(_ context.Context, id uuid.UUID) (*model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok := s.devices[id]
	if !ok {
		return nil, model.ErrDeviceNotFound
	}
	return copyDevice(dev), nil
}

func (s *memoryStore) CreateDevice(_ context.Context, device *model.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byCode[device.PairingCode]; ok {
		return model.ErrDuplicatePairingCode
	}
	s.devices[device.ID] = copyDevice(device)
	s.byCode[device.PairingCode] = device.ID
	return nil
}

func (s *memoryStore) UpdateDevicePresence(_ context.Context, id uuid.UUID, status model.DeviceStatus, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.devices[id]
	if !ok {
		return model.ErrDeviceNotFound
	}
	dev.Status = status
	dev.LastSeenAt = lastSeen
	return nil
}

func (s *memoryStore) TouchDevice(_ context.Context, id uuid.UUID, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.devices[id]
	if !ok {
		return model.ErrDeviceNotFound
	}
	dev.LastSeenAt = lastSeen
	return nil
}

func (s *memoryStore) ClaimDevice(_ context.Context, id, ownerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.devices[id]
	if !ok {
		return model.ErrDeviceNotFound
	}
	if dev.OwnerID != nil {
		return model.ErrDeviceAlreadyClaimed
	}
	owner := ownerID
	dev.OwnerID = &owner
	return nil
}

func (s *memoryStore) ResetPresence(_ context.Context, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, dev := range s.devices {
		if dev.Status == model.DeviceOnline {
			dev.Status = model.DeviceOffline
			dev.LastSeenAt = at
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) CreateMessage(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.ID] = copyMessage(msg)
	return nil
}

func (s *memoryStore) GetMessage(_ context.Context, id uuid.UUID) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, model.ErrMessageNotFound
	}
	return s.withSender(copyMessage(msg)), nil
}

func (s *memoryStore) GetDueScheduledMessages(_ context.Context, now time.Time) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*model.Message
	for _, msg := range s.messages {
		if msg.IsDue(now) {
			due = append(due, s.withSender(copyMessage(msg)))
		}
	}
	slices.SortFunc(due, func(a, b *model.Message) int {
		return a.ScheduledAt.Compare(*b.ScheduledAt)
	})
	return due, nil
}

func (s *memoryStore) MarkMessageSent(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return model.ErrMessageNotFound
	}
	if msg.State != model.MessageQueued {
		return model.ErrInvalidTransition
	}
	msg.State = model.MessageSent
	msg.SentAt = &at
	return nil
}

func (s *memoryStore) ScheduleMessage(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return model.ErrMessageNotFound
	}
	if msg.State != model.MessageQueued || msg.ScheduledAt != nil {
		return model.ErrInvalidTransition
	}
	msg.ScheduledAt = &at
	return nil
}

func (s *memoryStore) UpdateMessageState(_ context.Context, update model.StateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[update.MessageID]
	if !ok {
		return model.ErrMessageNotFound
	}
	if !msg.State.CanTransition(update.State) {
		return model.ErrInvalidTransition
	}

	msg.State = update.State
	if update.State == model.MessagePrinted {
		at := update.At
		msg.PrintedAt = &at
	}
	if update.Error != "" {
		msg.ErrorMessage = update.Error
	}
	return nil
}

func (s *memoryStore) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memoryStore) PutUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *memoryStore) Close() error { return nil }

// withSender resolves the display name the print_job envelope carries. Caller holds the lock.
func (s *memoryStore) withSender(msg *model.Message) *model.Message {
	if u, ok := s.users[msg.SenderID]; ok {
		msg.SenderName = u.Name
	} else if msg.SenderName == "" {
		msg.SenderName = UnknownSender
	}
	return msg
}

// UnknownSender is reported when the sender record cannot be resolved.
const UnknownSender = "Unknown"

func copyDevice(d *model.Device) *model.Device {
	cp := *d
	if d.OwnerID != nil {
		owner := *d.OwnerID
		cp.OwnerID = &owner
	}
	return &cp
}

func copyMessage(m *model.Message) *model.Message {
	cp := *m
	cp.Content = slices.Clone(m.Content)
	return &cp
}
