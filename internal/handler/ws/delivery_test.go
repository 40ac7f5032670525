package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hadlocna/PaperDrop/config"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/domain/registry"
	"github.com/hadlocna/PaperDrop/internal/metrics"
	"github.com/hadlocna/PaperDrop/internal/service"
	"github.com/hadlocna/PaperDrop/internal/store"
	"github.com/hadlocna/PaperDrop/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type env struct {
	store    store.Store
	hub      *registry.Hub
	delivery service.Dispatcher
	server   *httptest.Server
	url      string
}

// downStore fails every device lookup the way an open breaker does.
type downStore struct {
	store.Store
}

func (downStore) GetDeviceByPairingCode(context.Context, string) (*model.Device, error) {
	return nil, model.ErrStoreUnavailable
}

func newEnv(t *testing.T, st store.Store, pongWait time.Duration) *env {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		WS: config.WSConfig{
			WriteTimeout:    time.Second,
			PongWait:        pongWait,
			MaxMessageBytes: 64 * 1024,
			SendBuffer:      8,
			SendTimeout:     100 * time.Millisecond,
		},
	}
	m := metrics.New()
	hub := registry.NewHub(registry.WithLogger(logger))

	auth := service.NewAuthService(st, cfg, m, logger)
	presence := service.NewPresenceService(hub, st, nil, logger)
	inbound := service.NewStatusService(st, presence, nil, m, logger)
	delivery := service.NewDeliveryService(hub, cfg, m, noop.NewTracerProvider().Tracer("test"))

	srv := httptest.NewServer(NewWSHandler(logger, cfg, auth, presence, inbound))
	t.Cleanup(srv.Close)

	return &env{
		store:    st,
		hub:      hub,
		delivery: delivery,
		server:   srv,
		url:      "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (e *env) dial(t *testing.T, code, secret string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if code != "" {
		header.Set(HeaderDeviceCode, code)
	}
	if secret != "" {
		header.Set(HeaderDeviceSecret, secret)
	}

	c, resp, err := websocket.DefaultDialer.Dial(e.url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (e *env) deviceID(t *testing.T, code string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	require.Eventually(t, func() bool {
		d, err := e.store.GetDeviceByPairingCode(context.Background(), code)
		if err != nil {
			return false
		}
		id = d.ID
		return e.hub.IsConnected(id)
	}, 2*time.Second, 10*time.Millisecond)
	return id
}

// status is safe to call from Eventually conditions.
func (e *env) status(id uuid.UUID) model.DeviceStatus {
	d, err := e.store.GetDevice(context.Background(), id)
	if err != nil {
		return ""
	}
	return d.Status
}

func readClose(t *testing.T, c *websocket.Conn) *websocket.CloseError {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := c.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		return ce
	}
}

func TestHandshakeRejections(t *testing.T) {
	tests := []struct {
		name   string
		st     store.Store
		code   string
		secret string
		want   int
		reason string
	}{
		{name: "missing secret", st: store.NewMemoryStore(), code: "ABC-123", want: CloseMissingAuth, reason: "Missing authentication"},
		{name: "missing everything", st: store.NewMemoryStore(), want: CloseMissingAuth, reason: "Missing authentication"},
		{name: "store down", st: downStore{store.NewMemoryStore()}, code: "ABC-123", secret: "s1", want: websocket.CloseInternalServerErr, reason: "Store unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.st, time.Minute)
			ce := readClose(t, e.dial(t, tt.code, tt.secret))
			assert.Equal(t, tt.want, ce.Code)
			assert.Equal(t, tt.reason, ce.Text)
			assert.Equal(t, 0, e.hub.Stats().ConnectedDevices)
		})
	}
}

func TestHandshakeWrongSecret(t *testing.T) {
	e := newEnv(t, store.NewMemoryStore(), time.Minute)
	e.dial(t, "ABC-123", "s1")
	id := e.deviceID(t, "ABC-123")

	ce := readClose(t, e.dial(t, "ABC-123", "wrong"))
	assert.Equal(t, CloseInvalidAuth, ce.Code)
	assert.Equal(t, "Invalid authentication", ce.Text)
	assert.True(t, e.hub.IsConnected(id), "rejected handshake must not disturb the live session")
}

func TestDeliveryAndStatusOverSocket(t *testing.T) {
	e := newEnv(t, store.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	client := e.dial(t, "ABC-123", "s1")
	id := e.deviceID(t, "ABC-123")
	assert.Equal(t, model.DeviceOnline, e.status(id))

	msg := storetest.NewMessage(id, nil)
	require.NoError(t, e.store.CreateMessage(ctx, msg))
	require.NoError(t, e.store.MarkMessageSent(ctx, msg.ID, time.Now()))

	res, err := e.delivery.Dispatch(ctx, id, model.NewPrintJobEnvelope(msg))
	require.NoError(t, err)
	require.Equal(t, model.Delivered, res)

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var job map[string]any
	require.NoError(t, client.ReadJSON(&job))
	assert.Equal(t, "print_job", job["type"])
	assert.Equal(t, msg.ID.String(), job["message_id"])

	// Garbage must not cost the session.
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, client.WriteJSON(map[string]string{"type": "reboot"}))
	require.NoError(t, client.WriteJSON(map[string]string{
		"type":       "print_status",
		"message_id": msg.ID.String(),
		"status":     "printed",
	}))

	require.Eventually(t, func() bool {
		got, err := e.store.GetMessage(ctx, msg.ID)
		return err == nil && got.State == model.MessagePrinted
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, e.hub.IsConnected(id))
}

func TestSupersededSessionIsClosedButDeviceStaysOnline(t *testing.T) {
	e := newEnv(t, store.NewMemoryStore(), time.Minute)

	first := e.dial(t, "ABC-123", "s1")
	id := e.deviceID(t, "ABC-123")
	oldConn, _ := e.hub.Lookup(id)

	second := e.dial(t, "ABC-123", "s1")
	require.Eventually(t, func() bool {
		c, ok := e.hub.Lookup(id)
		return ok && c != oldConn
	}, 2*time.Second, 10*time.Millisecond)

	ce := readClose(t, first)
	assert.Equal(t, websocket.CloseGoingAway, ce.Code)

	// Give the old handler time to run its stale disconnect.
	time.Sleep(100 * time.Millisecond)
	assert.True(t, e.hub.IsConnected(id))
	assert.Equal(t, model.DeviceOnline, e.status(id))

	res, err := e.delivery.Dispatch(context.Background(), id, model.NewTestPrintEnvelope("r1"))
	require.NoError(t, err)
	require.Equal(t, model.Delivered, res)

	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	require.NoError(t, second.ReadJSON(&frame))
	assert.Equal(t, "r1", frame["request_id"])
}

func TestClientCloseMarksOffline(t *testing.T) {
	e := newEnv(t, store.NewMemoryStore(), time.Minute)

	client := e.dial(t, "ABC-123", "s1")
	id := e.deviceID(t, "ABC-123")

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, client.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
	_ = client.Close()

	require.Eventually(t, func() bool {
		return !e.hub.IsConnected(id) && e.status(id) == model.DeviceOffline
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIdleDeviceTimesOut(t *testing.T) {
	e := newEnv(t, store.NewMemoryStore(), 300*time.Millisecond)

	// Never reading means pings are never answered.
	e.dial(t, "ABC-123", "s1")
	id := e.deviceID(t, "ABC-123")

	require.Eventually(t, func() bool {
		return !e.hub.IsConnected(id) && e.status(id) == model.DeviceOffline
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWritePumpFlushesBufferedFramesOnClose(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{WS: config.WSConfig{WriteTimeout: time.Second, PongWait: time.Minute}}
	h := NewWSHandler(logger, cfg, nil, nil, nil)

	// Both frames are accepted before the session is closed, so both count
	// as delivered and must reach the peer ahead of the close frame.
	conn := registry.NewConnector(context.Background(), uuid.New(), 4, registry.ConnectMetadata{})
	require.True(t, conn.Send([]byte(`{"n":1}`), time.Second))
	require.True(t, conn.Send([]byte(`{"n":2}`), time.Second))
	conn.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		h.writePump(ws, conn)
	}))
	t.Cleanup(srv.Close)

	c, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = c.Close() })

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []float64{1, 2} {
		var frame map[string]any
		require.NoError(t, c.ReadJSON(&frame))
		assert.Equal(t, want, frame["n"])
	}

	ce := readClose(t, c)
	assert.Equal(t, websocket.CloseGoingAway, ce.Code)
}

func TestSupersededSessionReceivesFrameDispatchedBeforeIt(t *testing.T) {
	e := newEnv(t, store.NewMemoryStore(), time.Minute)

	first := e.dial(t, "ABC-123", "s1")
	id := e.deviceID(t, "ABC-123")

	res, err := e.delivery.Dispatch(context.Background(), id, model.NewTestPrintEnvelope("r1"))
	require.NoError(t, err)
	require.Equal(t, model.Delivered, res)

	e.dial(t, "ABC-123", "s1")

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	require.NoError(t, first.ReadJSON(&frame))
	assert.Equal(t, "r1", frame["request_id"])

	ce := readClose(t, first)
	assert.Equal(t, websocket.CloseGoingAway, ce.Code)
}
