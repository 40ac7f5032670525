package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/event"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textRequest(deviceID uuid.UUID) SendMessageRequest {
	return SendMessageRequest{
		SenderID:    uuid.New(),
		DeviceID:    deviceID,
		Content:     json.RawMessage(`{"body":"hello"}`),
		ContentType: model.ContentText,
	}
}

// Connect, push, print: the full happy path for one device.
func TestSendMessagePrintedRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d1, conn := f.online(t, "ABC-123", "s1")
	stored, err := f.store.GetDevice(ctx, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeviceOnline, stored.Status)

	m1, err := f.messaging.SendMessage(ctx, textRequest(d1.ID))
	require.NoError(t, err)
	assert.Equal(t, model.MessageSent, m1.State)
	require.NotNil(t, m1.SentAt)

	frame := nextFrame(t, conn)
	assert.Equal(t, "new_message", frame["type"])
	body, ok := frame["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, m1.ID.String(), body["id"])
	assert.Equal(t, "text", body["contentType"])

	require.NoError(t, f.status.HandleFrame(ctx, conn, statusFrame(m1.ID.String(), "printed", nil)))

	got, err := f.store.GetMessage(ctx, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessagePrinted, got.State)
	assert.NotNil(t, got.PrintedAt)
	assert.Nil(t, got.ScheduledAt, "immediate sends carry no schedule")
	assert.Equal(t,
		[]event.Kind{event.DeviceOnline, event.MessageSent, event.MessagePrinted},
		f.events.kinds(),
	)
}

func TestSendMessageOfflineStaysQueuedAndDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	device, err := f.auth.Provision(ctx, Credentials{PairingCode: "ABC-123", Secret: "s1"})
	require.NoError(t, err)

	msg, err := f.messaging.SendMessage(ctx, textRequest(device.ID))
	require.NoError(t, err)
	assert.Equal(t, model.MessageQueued, msg.State)
	require.NotNil(t, msg.ScheduledAt)

	due, err := f.store.GetDueScheduledMessages(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, msg.ID, due[0].ID)
}

func TestSendMessageScheduledIsNotPushed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	device, conn := f.online(t, "ABC-123", "s1")

	req := textRequest(device.ID)
	later := time.Now().Add(time.Hour)
	req.ScheduledAt = &later

	msg, err := f.messaging.SendMessage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.MessageQueued, msg.State)
	require.NotNil(t, msg.ScheduledAt)
	assertNoFrame(t, conn)
}

func TestSendMessageRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	device, _ := f.online(t, "ABC-123", "s1")

	tests := []struct {
		name   string
		mutate func(*SendMessageRequest)
		want   error
	}{
		{name: "no sender", mutate: func(r *SendMessageRequest) { r.SenderID = uuid.Nil }, want: model.ErrInvalidRequest},
		{name: "bad content type", mutate: func(r *SendMessageRequest) { r.ContentType = "pdf" }, want: model.ErrInvalidRequest},
		{name: "empty content", mutate: func(r *SendMessageRequest) { r.Content = nil }, want: model.ErrInvalidRequest},
		{name: "unknown device", mutate: func(r *SendMessageRequest) { r.DeviceID = uuid.New() }, want: model.ErrDeviceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := textRequest(device.ID)
			tt.mutate(&req)
			_, err := f.messaging.SendMessage(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTestPrint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offline, err := f.auth.Provision(ctx, Credentials{PairingCode: "OFF-001", Secret: "s1"})
	require.NoError(t, err)
	_, res, err := f.messaging.TestPrint(ctx, offline.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Offline, res)

	device, conn := f.online(t, "ABC-123", "s1")
	requestID, res, err := f.messaging.TestPrint(ctx, device.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Delivered, res)
	assert.Equal(t, requestID, nextFrame(t, conn)["request_id"])

	_, _, err = f.messaging.TestPrint(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)
}

func TestClaimDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	device, conn := f.online(t, "ABC-123", "s1")
	owner := uuid.New()

	claimed, res, err := f.messaging.ClaimDevice(ctx, ClaimRequest{DeviceCode: "ABC-123", UserID: owner, OwnerName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, model.Delivered, res)
	require.NotNil(t, claimed.OwnerID)
	assert.Equal(t, owner, *claimed.OwnerID)

	frame := nextFrame(t, conn)
	assert.Equal(t, "claimed", frame["type"])
	assert.Equal(t, "Ada", frame["owner_name"])

	stored, err := f.store.GetDevice(ctx, device.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsClaimed())

	_, _, err = f.messaging.ClaimDevice(ctx, ClaimRequest{DeviceCode: "ABC-123", UserID: uuid.New()})
	assert.ErrorIs(t, err, model.ErrDeviceAlreadyClaimed)

	_, _, err = f.messaging.ClaimDevice(ctx, ClaimRequest{DeviceCode: "NOPE", UserID: owner})
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)

	_, _, err = f.messaging.ClaimDevice(ctx, ClaimRequest{DeviceCode: "ABC-123"})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestGetDeviceReportsLiveState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	device, conn := f.online(t, "ABC-123", "s1")

	view, err := f.messaging.GetDevice(ctx, device.ID)
	require.NoError(t, err)
	assert.True(t, view.Online)

	_, err = f.presence.Disconnect(ctx, conn)
	require.NoError(t, err)

	view, err = f.messaging.GetDevice(ctx, device.ID)
	require.NoError(t, err)
	assert.False(t, view.Online)
	assert.Equal(t, model.DeviceOffline, view.Status)
}
