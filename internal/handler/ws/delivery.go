package ws

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hadlocna/PaperDrop/config"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/domain/registry"
	"github.com/hadlocna/PaperDrop/internal/service"
)

// Credential headers carried on the upgrade request.
const (
	HeaderDeviceCode   = "X-Device-Code"
	HeaderDeviceSecret = "X-Device-Secret"
)

// Application close codes sent on handshake rejection.
const (
	CloseMissingAuth = 4001
	CloseInvalidAuth = 4003
)

// disconnectTimeout bounds the offline bookkeeping after the socket is gone.
const disconnectTimeout = 5 * time.Second

type WSHandler struct {
	logger   *slog.Logger
	auth     service.Auther
	presence service.Presencer
	inbound  service.InboundHandler
	cfg      config.WSConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, cfg *config.Config, auth service.Auther, presence service.Presencer, inbound service.InboundHandler) *WSHandler {
	return &WSHandler{
		logger:   logger.With("component", "ws"),
		auth:     auth,
		presence: presence,
		inbound:  inbound,
		cfg:      cfg.WS,
		upgrader: websocket.Upgrader{
			// Appliances are not browsers; there is no origin to check.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. EXTRACT CREDENTIALS before the upgrade consumes the request.
	creds := service.Credentials{
		PairingCode: r.Header.Get(HeaderDeviceCode),
		Secret:      r.Header.Get(HeaderDeviceSecret),
	}

	// 2. UPGRADE TO WEBSOCKET. Rejections happen afterwards so the device
	// can read the close code.
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	defer ws.Close()

	// 3. HANDSHAKE
	ctx := r.Context()
	device, err := h.auth.Authenticate(ctx, creds)
	if err != nil {
		h.reject(ws, err, creds.PairingCode)
		return
	}

	conn := registry.NewConnector(ctx, device.ID, h.cfg.SendBuffer, registry.ConnectMetadata{
		PairingCode: device.PairingCode,
		RemoteIP:    remoteIP(r),
		UserAgent:   r.UserAgent(),
	})

	// 4. ADMIT THE SESSION
	if err := h.presence.Connect(ctx, device, conn); err != nil {
		conn.Close()
		h.reject(ws, err, creds.PairingCode)
		return
	}
	defer h.disconnect(ctx, conn)

	h.logger.Info("ws opened", "device_id", device.ID, "conn_id", conn.GetID(), "remote", conn.Metadata().RemoteIP)

	// 5. PUMPS: the writer owns every data write, the reader runs here.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ws, conn)
		_ = ws.Close() // unblocks the reader
	}()

	h.readPump(ctx, ws, conn)
	conn.Close()
	<-writerDone
}

func (h *WSHandler) disconnect(ctx context.Context, conn registry.Connector) {
	// The request context is already done once the socket drops.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cancel()

	authoritative, err := h.presence.Disconnect(dctx, conn)
	if err != nil {
		h.logger.Error("ws disconnect bookkeeping failed", "device_id", conn.GetDeviceID(), "err", err)
	}
	h.logger.Info("ws closed",
		"device_id", conn.GetDeviceID(),
		"conn_id", conn.GetID(),
		"superseded", !authoritative,
		"dropped_frames", conn.Dropped(),
		"last_activity", conn.LastActivity(),
	)
}

func (h *WSHandler) reject(ws *websocket.Conn, err error, code string) {
	closeCode, reason := closeFor(err)
	h.logger.Warn("ws handshake rejected", "pairing_code", code, "close_code", closeCode, "err", err)

	msg := websocket.FormatCloseMessage(closeCode, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteTimeout))
}

func closeFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrMissingCredentials):
		return CloseMissingAuth, "Missing authentication"
	case errors.Is(err, model.ErrInvalidCredentials):
		return CloseInvalidAuth, "Invalid authentication"
	default:
		return websocket.CloseInternalServerErr, "Store unavailable"
	}
}

func (h *WSHandler) readPump(ctx context.Context, ws *websocket.Conn, conn registry.Connector) {
	ws.SetReadLimit(h.cfg.MaxMessageBytes)

	// [IDLE_TIMEOUT] Any inbound traffic, pongs included, extends the deadline.
	extend := func() {
		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		conn.Touch()
	}
	extend()
	ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("ws read ended", "device_id", conn.GetDeviceID(), "err", err)
			}
			return
		}
		extend()

		if mt != websocket.TextMessage {
			continue
		}
		if err := h.inbound.HandleFrame(ctx, conn, data); err != nil {
			h.logger.Warn("ws inbound frame not applied", "device_id", conn.GetDeviceID(), "err", err)
		}
	}
}

func (h *WSHandler) writePump(ws *websocket.Conn, conn registry.Connector) {
	ticker := time.NewTicker(h.cfg.PingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			// Superseded, shut down, or the reader already quit. Frames the
			// dispatcher already counted as sent still go out first.
			h.flush(ws, conn)
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "Session closed")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteTimeout))
			return

		case frame := <-conn.Recv():
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Warn("ws send failed", "device_id", conn.GetDeviceID(), "err", err)
				return
			}

		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is still buffered without waiting for more.
func (h *WSHandler) flush(ws *websocket.Conn, conn registry.Connector) {
	for {
		select {
		case frame := <-conn.Recv():
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Debug("ws flush stopped", "device_id", conn.GetDeviceID(), "err", err)
				return
			}
		default:
			return
		}
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
