// Package storetest runs the behavioural contract every store.Store implementation must honour.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory builds an empty store for a single subtest.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("device lifecycle", func(t *testing.T) { testDeviceLifecycle(t, newStore(t)) })
	t.Run("duplicate pairing code", func(t *testing.T) { testDuplicateCode(t, newStore(t)) })
	t.Run("concurrent first contact", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("claim", func(t *testing.T) { testClaim(t, newStore(t)) })
	t.Run("due scheduled messages", func(t *testing.T) { testDueMessages(t, newStore(t)) })
	t.Run("message transitions", func(t *testing.T) { testTransitions(t, newStore(t)) })
	t.Run("sender name", func(t *testing.T) { testSenderName(t, newStore(t)) })
	t.Run("schedule fallback", func(t *testing.T) { testScheduleFallback(t, newStore(t)) })
	t.Run("reset presence", func(t *testing.T) { testResetPresence(t, newStore(t)) })
}

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newDevice(code string) *model.Device {
	return model.NewDevice(code, "s1", model.DeviceOnline, epoch)
}

func NewMessage(deviceID uuid.UUID, scheduledAt *time.Time) *model.Message {
	return &model.Message{
		ID:          uuid.New(),
		SenderID:    uuid.New(),
		DeviceID:    deviceID,
		Content:     json.RawMessage(`{"body":"hello"}`),
		ContentType: model.ContentText,
		State:       model.MessageQueued,
		ScheduledAt: scheduledAt,
		CreatedAt:   epoch,
	}
}

func testDeviceLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	dev := newDevice("ABC-123")
	require.NoError(t, s.CreateDevice(ctx, dev))

	got, err := s.GetDeviceByPairingCode(ctx, "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, dev.ID, got.ID)
	assert.Equal(t, "s1", got.Secret)
	assert.Equal(t, model.DeviceOnline, got.Status)
	assert.Equal(t, model.DefaultFriendlyName, got.FriendlyName)
	assert.True(t, epoch.Equal(got.LastSeenAt))

	later := epoch.Add(time.Minute)
	require.NoError(t, s.UpdateDevicePresence(ctx, dev.ID, model.DeviceOffline, later))
	got, err = s.GetDevice(ctx, dev.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeviceOffline, got.Status)
	assert.True(t, later.Equal(got.LastSeenAt))

	touched := later.Add(time.Minute)
	require.NoError(t, s.TouchDevice(ctx, dev.ID, touched))
	got, err = s.GetDevice(ctx, dev.ID)
	require.NoError(t, err)
	assert.True(t, touched.Equal(got.LastSeenAt))

	_, err = s.GetDeviceByPairingCode(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)
	_, err = s.GetDevice(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)
	assert.ErrorIs(t, s.UpdateDevicePresence(ctx, uuid.New(), model.DeviceOnline, later), model.ErrDeviceNotFound)
}

func testDuplicateCode(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateDevice(ctx, newDevice("DUP-1")))
	assert.ErrorIs(t, s.CreateDevice(ctx, newDevice("DUP-1")), model.ErrDuplicatePairingCode)
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.CreateDevice(ctx, newDevice("RACE-1")); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, model.ErrDuplicatePairingCode)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func testClaim(t *testing.T, s store.Store) {
	ctx := context.Background()
	dev := newDevice("CLAIM-1")
	require.NoError(t, s.CreateDevice(ctx, dev))

	owner := uuid.New()
	require.NoError(t, s.ClaimDevice(ctx, dev.ID, owner))
	assert.ErrorIs(t, s.ClaimDevice(ctx, dev.ID, uuid.New()), model.ErrDeviceAlreadyClaimed)
	assert.ErrorIs(t, s.ClaimDevice(ctx, uuid.New(), owner), model.ErrDeviceNotFound)

	got, err := s.GetDevice(ctx, dev.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, owner, *got.OwnerID)
}

func testDueMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	deviceID := uuid.New()
	past := epoch.Add(-time.Minute)
	now := epoch
	future := epoch.Add(time.Hour)

	due := NewMessage(deviceID, &past)
	exact := NewMessage(deviceID, &now)
	later := NewMessage(deviceID, &future)
	immediate := NewMessage(deviceID, nil)
	alreadySent := NewMessage(deviceID, &past)

	for _, m := range []*model.Message{due, exact, later, immediate, alreadySent} {
		require.NoError(t, s.CreateMessage(ctx, m))
	}
	require.NoError(t, s.MarkMessageSent(ctx, alreadySent.ID, now))

	got, err := s.GetDueScheduledMessages(ctx, now)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.ID)
		assert.Equal(t, model.MessageQueued, m.State)
		assert.JSONEq(t, `{"body":"hello"}`, string(m.Content))
	}
	assert.ElementsMatch(t, []uuid.UUID{due.ID, exact.ID}, ids)
}

func testTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	msg := NewMessage(uuid.New(), nil)
	require.NoError(t, s.CreateMessage(ctx, msg))

	sentAt := epoch.Add(time.Second)
	require.NoError(t, s.MarkMessageSent(ctx, msg.ID, sentAt))
	assert.ErrorIs(t, s.MarkMessageSent(ctx, msg.ID, sentAt), model.ErrInvalidTransition)

	printedAt := epoch.Add(2 * time.Second)
	require.NoError(t, s.UpdateMessageState(ctx, model.StateUpdate{
		MessageID: msg.ID,
		State:     model.MessagePrinted,
		At:        printedAt,
	}))

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessagePrinted, got.State)
	require.NotNil(t, got.SentAt)
	require.NotNil(t, got.PrintedAt)
	assert.True(t, sentAt.Equal(*got.SentAt))
	assert.True(t, printedAt.Equal(*got.PrintedAt))

	// [NO_REGRESSION]
	assert.ErrorIs(t, s.UpdateMessageState(ctx, model.StateUpdate{
		MessageID: msg.ID,
		State:     model.MessageError,
		Error:     "paper jam",
		At:        printedAt,
	}), model.ErrInvalidTransition)
	assert.ErrorIs(t, s.MarkMessageSent(ctx, msg.ID, printedAt), model.ErrInvalidTransition)

	failed := NewMessage(uuid.New(), nil)
	require.NoError(t, s.CreateMessage(ctx, failed))
	require.NoError(t, s.UpdateMessageState(ctx, model.StateUpdate{
		MessageID: failed.ID,
		State:     model.MessageError,
		Error:     "paper jam",
		At:        printedAt,
	}))
	got, err = s.GetMessage(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageError, got.State)
	assert.Equal(t, "paper jam", got.ErrorMessage)
	assert.Nil(t, got.PrintedAt)

	assert.ErrorIs(t, s.UpdateMessageState(ctx, model.StateUpdate{
		MessageID: uuid.New(),
		State:     model.MessagePrinted,
	}), model.ErrMessageNotFound)
	_, err = s.GetMessage(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrMessageNotFound)
}

func testSenderName(t *testing.T, s store.Store) {
	ctx := context.Background()
	past := epoch.Add(-time.Minute)

	known := NewMessage(uuid.New(), &past)
	require.NoError(t, s.PutUser(ctx, &model.User{ID: known.SenderID, Name: "Ada"}))
	require.NoError(t, s.CreateMessage(ctx, known))

	anonymous := NewMessage(uuid.New(), &past)
	require.NoError(t, s.CreateMessage(ctx, anonymous))

	got, err := s.GetMessage(ctx, known.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.SenderName)

	got, err = s.GetMessage(ctx, anonymous.ID)
	require.NoError(t, err)
	assert.Equal(t, store.UnknownSender, got.SenderName)

	u, err := s.GetUser(ctx, known.SenderID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	_, err = s.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}

func testScheduleFallback(t *testing.T, s store.Store) {
	ctx := context.Background()
	immediate := NewMessage(uuid.New(), nil)
	require.NoError(t, s.CreateMessage(ctx, immediate))

	// Unscheduled messages are invisible to the redelivery query.
	due, err := s.GetDueScheduledMessages(ctx, epoch)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, s.ScheduleMessage(ctx, immediate.ID, epoch))
	due, err = s.GetDueScheduledMessages(ctx, epoch)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, immediate.ID, due[0].ID)

	// Already scheduled.
	assert.ErrorIs(t, s.ScheduleMessage(ctx, immediate.ID, epoch.Add(time.Hour)), model.ErrInvalidTransition)

	sent := NewMessage(uuid.New(), nil)
	require.NoError(t, s.CreateMessage(ctx, sent))
	require.NoError(t, s.MarkMessageSent(ctx, sent.ID, epoch))
	assert.ErrorIs(t, s.ScheduleMessage(ctx, sent.ID, epoch), model.ErrInvalidTransition)

	got, err := s.GetMessage(ctx, sent.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ScheduledAt)

	assert.ErrorIs(t, s.ScheduleMessage(ctx, uuid.New(), epoch), model.ErrMessageNotFound)
}

func testResetPresence(t *testing.T, s store.Store) {
	ctx := context.Background()
	online := newDevice("ON-1")
	pending := model.NewDevice("PEND-1", "s1", model.DeviceSetupPending, epoch)
	for _, d := range []*model.Device{online, pending} {
		require.NoError(t, s.CreateDevice(ctx, d))
	}

	boot := epoch.Add(time.Hour)
	n, err := s.ResetPresence(ctx, boot)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetDevice(ctx, online.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeviceOffline, got.Status)
	assert.True(t, boot.Equal(got.LastSeenAt))

	got, err = s.GetDevice(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeviceSetupPending, got.Status)

	n, err = s.ResetPresence(ctx, boot)
	require.NoError(t, err)
	assert.Zero(t, n)
}
