package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/domain/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchOfflineHasNoSideEffects(t *testing.T) {
	f := newFixture(t)

	res, err := f.delivery.Dispatch(context.Background(), uuid.New(), model.NewTestPrintEnvelope("r1"))
	require.NoError(t, err)
	assert.Equal(t, model.Offline, res)
	assert.Empty(t, f.events.kinds())
	assert.Equal(t, 0, f.hub.Stats().ConnectedDevices)
}

func TestDispatchDeliversExactlyOneFrame(t *testing.T) {
	f := newFixture(t)
	device, conn := f.online(t, "ABC-123", "s1")

	res, err := f.delivery.Dispatch(context.Background(), device.ID, model.NewTestPrintEnvelope("r1"))
	require.NoError(t, err)
	assert.Equal(t, model.Delivered, res)

	frame := nextFrame(t, conn)
	assert.Equal(t, "test_print", frame["type"])
	assert.Equal(t, "r1", frame["request_id"])
	assertNoFrame(t, conn)
}

func TestDispatchStalledPeerIsBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	device, err := f.auth.Authenticate(ctx, Credentials{PairingCode: "ABC-123", Secret: "s1"})
	require.NoError(t, err)

	conn := registry.NewConnector(ctx, device.ID, 1, registry.ConnectMetadata{})
	t.Cleanup(conn.Close)
	require.NoError(t, f.presence.Connect(ctx, device, conn))

	res, err := f.delivery.Dispatch(ctx, device.ID, model.NewTestPrintEnvelope("fills buffer"))
	require.NoError(t, err)
	require.Equal(t, model.Delivered, res)

	start := time.Now()
	res, err = f.delivery.Dispatch(ctx, device.ID, model.NewTestPrintEnvelope("stalls"))
	require.NoError(t, err)
	assert.Equal(t, model.Offline, res)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, uint64(1), conn.Dropped())
}

func TestDispatchClosedSessionIsOffline(t *testing.T) {
	f := newFixture(t)
	device, conn := f.online(t, "ABC-123", "s1")
	conn.Close()

	res, err := f.delivery.Dispatch(context.Background(), device.ID, model.NewTestPrintEnvelope("r1"))
	require.NoError(t, err)
	assert.Equal(t, model.Offline, res)
}

func TestDispatchMiddlewarePassesThrough(t *testing.T) {
	f := newFixture(t)
	device, conn := f.online(t, "ABC-123", "s1")
	d := NewDispatchMiddleware(f.delivery, discardLogger())

	res, err := d.Dispatch(context.Background(), device.ID, model.NewClaimedEnvelope("Ada"))
	require.NoError(t, err)
	assert.Equal(t, model.Delivered, res)
	assert.Equal(t, "claimed", nextFrame(t, conn)["type"])
}
