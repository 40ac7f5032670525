// Package httpsrv hosts the device socket endpoint and the HTTP API on one listener.
package httpsrv

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hadlocna/PaperDrop/config"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/domain/registry"
	"github.com/hadlocna/PaperDrop/internal/handler/api"
	"github.com/hadlocna/PaperDrop/internal/handler/ws"
	"github.com/hadlocna/PaperDrop/internal/metrics"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

const readHeaderTimeout = 10 * time.Second

type RouterParams struct {
	fx.In

	Config  *config.Config
	Logger  *slog.Logger
	Devices *ws.WSHandler
	API     *api.APIHandler
	Hub     registry.Hubber
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

type healthResponse struct {
	Status string `json:"status"`
	model.HubStats
}

func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(p.Logger))
	r.Use(middleware.Recoverer)

	// [DEVICE_TRANSPORT] Long-lived sockets stay outside the per-request span.
	r.Handle(p.Config.HTTP.DevicePath, p.Devices)

	r.Route("/api", func(r chi.Router) {
		r.Use(Tracing(p.Tracer))
		p.API.Routes(r)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", HubStats: p.Hub.Stats()})
	})
	r.Handle("/metrics", p.Metrics.Handler())

	return r
}

type Server struct {
	srv      *http.Server
	logger   *slog.Logger
	shutdown time.Duration
	addr     net.Addr
	done     chan struct{}
}

func NewServer(cfg *config.Config, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger:   logger.With("component", "http"),
		shutdown: cfg.HTTP.ShutdownTimeout,
		done:     make(chan struct{}),
	}
}

// Start binds the listener synchronously so address errors surface at boot.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr()
	s.logger.Info("[HTTP] listening", slog.String("addr", ln.Addr().String()))

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("[HTTP] server stopped", slog.Any("err", err))
		}
	}()
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() net.Addr { return s.addr }

// Stop drains in-flight requests. Hijacked device sockets are closed by the hub.
func (s *Server) Stop(ctx context.Context) error {
	if s.shutdown > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdown)
		defer cancel()
	}
	err := s.srv.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return err
}
