package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] THE INTERFACE FOR EXTERNAL LAYERS (REGISTRY/HUB)
// The pointer identity of a Connector doubles as the generation token of a
// device session: Unregister only evicts the exact handle it was given.
type Connector interface {
	GetID() uuid.UUID
	GetDeviceID() uuid.UUID
	Metadata() ConnectMetadata
	Send(frame []byte, timeout time.Duration) bool // Bounded, never blocks past timeout
	Recv() <-chan []byte
	Done() <-chan struct{}
	LastActivity() time.Time
	Touch()
	Dropped() uint64
	Close() // Terminate connection and release resources
}

// [METADATA] EXPORTED FOR TRANSPORT AND ANALYTICS LAYERS
type ConnectMetadata struct {
	PairingCode     string
	RemoteIP        string
	UserAgent       string
	FirmwareVersion string
}

// [CONNECT] CONCRETE IMPLEMENTATION (UNEXPORTED TO FORCE INTERFACE USAGE)
type connect struct {
	id        uuid.UUID
	deviceID  uuid.UUID
	metadata  ConnectMetadata
	createdAt time.Time

	ctx      context.Context
	cancelFn context.CancelFunc

	sendCh    chan []byte
	closeOnce sync.Once

	// [ATOMIC_FIELDS]
	lastActivityAt int64
	droppedCount   uint64
}

// NewConnector allocates a fresh session handle. Handles are never pooled:
// reusing one would let a stale disconnect match a newer session.
func NewConnector(ctx context.Context, deviceID uuid.UUID, bufferSize int, meta ConnectMetadata) Connector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	childCtx, cancel := context.WithCancel(ctx)

	return &connect{
		id:             uuid.New(),
		deviceID:       deviceID,
		metadata:       meta,
		createdAt:      time.Now(),
		ctx:            childCtx,
		cancelFn:       cancel,
		sendCh:         make(chan []byte, bufferSize),
		lastActivityAt: time.Now().UnixNano(),
	}
}

// --- IMPLEMENTATION OF CONNECTOR INTERFACE ---

func (c *connect) GetID() uuid.UUID          { return c.id }
func (c *connect) GetDeviceID() uuid.UUID    { return c.deviceID }
func (c *connect) Metadata() ConnectMetadata { return c.metadata }
func (c *connect) Recv() <-chan []byte       { return c.sendCh }
func (c *connect) Done() <-chan struct{}     { return c.ctx.Done() }
func (c *connect) Dropped() uint64           { return atomic.LoadUint64(&c.droppedCount) }

func (c *connect) LastActivity() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastActivityAt))
}

func (c *connect) Touch() {
	atomic.StoreInt64(&c.lastActivityAt, time.Now().UnixNano())
}

// Send enqueues a frame for the write pump. It waits at most timeout for
// buffer space so a stalled peer cannot hold the caller.
func (c *connect) Send(frame []byte, timeout time.Duration) bool {
	// [LIFECYCLE_GATE] Abort before touching the buffer if the session is gone.
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	// [FAST_PATH]
	select {
	case c.sendCh <- frame:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- frame:
		return true
	case <-timer.C:
		// [BACKPRESSURE_THRESHOLD] Persistent slow consumer.
		atomic.AddUint64(&c.droppedCount, 1)
		return false
	}
}

// Close cancels the session context. The send channel is left open so a
// concurrent Send can never panic; readers observe Done instead.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
	})
}
