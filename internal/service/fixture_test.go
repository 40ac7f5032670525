package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/hadlocna/PaperDrop/config"
	"github.com/hadlocna/PaperDrop/internal/domain/event"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/domain/registry"
	"github.com/hadlocna/PaperDrop/internal/metrics"
	"github.com/hadlocna/PaperDrop/internal/store"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []event.Eventer
	err    error
}

func (r *recordingEvents) Publish(_ context.Context, ev event.Eventer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingEvents) Publisher() message.Publisher { return nil }

func (r *recordingEvents) kinds() []event.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.GetKind())
	}
	return out
}

type fixture struct {
	cfg       *config.Config
	store     store.Store
	hub       *registry.Hub
	metrics   *metrics.Metrics
	events    *recordingEvents
	auth      *AuthService
	presence  *PresenceService
	delivery  *DeliveryService
	status    *StatusService
	messaging *MessagingService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		WS: config.WSConfig{
			SendTimeout: 50 * time.Millisecond,
			SendBuffer:  4,
		},
		Activity: config.ActivityConfig{Size: 16},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		cfg:     testConfig(),
		store:   store.NewMemoryStore(),
		hub:     registry.NewHub(registry.WithLogger(discardLogger())),
		metrics: metrics.New(),
		events:  &recordingEvents{},
	}
	logger := discardLogger()

	f.auth = NewAuthService(f.store, f.cfg, f.metrics, logger)
	f.presence = NewPresenceService(f.hub, f.store, f.events, logger)
	f.delivery = NewDeliveryService(f.hub, f.cfg, f.metrics, noop.NewTracerProvider().Tracer("test"))
	f.status = NewStatusService(f.store, f.presence, f.events, f.metrics, logger)
	f.messaging = NewMessagingService(f.store, f.delivery, f.presence, f.events, logger)
	return f
}

// online authenticates and connects a device the way the socket handler does.
func (f *fixture) online(t *testing.T, code, secret string) (*model.Device, registry.Connector) {
	t.Helper()
	ctx := context.Background()

	device, err := f.auth.Authenticate(ctx, Credentials{PairingCode: code, Secret: secret})
	require.NoError(t, err)

	conn := registry.NewConnector(ctx, device.ID, f.cfg.WS.SendBuffer, registry.ConnectMetadata{PairingCode: code})
	t.Cleanup(conn.Close)
	require.NoError(t, f.presence.Connect(ctx, device, conn))
	return device, conn
}

// nextFrame decodes the next frame queued for the device.
func nextFrame(t *testing.T, conn registry.Connector) map[string]any {
	t.Helper()
	select {
	case frame := <-conn.Recv():
		var out map[string]any
		require.NoError(t, json.Unmarshal(frame, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("no frame queued")
		return nil
	}
}

func assertNoFrame(t *testing.T, conn registry.Connector) {
	t.Helper()
	select {
	case frame := <-conn.Recv():
		t.Fatalf("unexpected frame %s", frame)
	default:
	}
}
