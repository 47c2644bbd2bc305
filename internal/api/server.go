// Package api serves the local HTTP and WebSocket interface of a running
// agencysync instance.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/marcus/agencysync/internal/orchestrator"
	"github.com/marcus/agencysync/internal/queue"
	"github.com/marcus/agencysync/internal/state"
)

// Service is the instance the API drives. *orchestrator.Orchestrator
// satisfies it.
type Service interface {
	Snapshot() state.AppState
	Watch() (<-chan state.AppState, func())
	Dispatch(ctx context.Context, a state.Action) error
	Status(ctx context.Context) (orchestrator.Status, error)
	Pending(ctx context.Context) ([]queue.Entry, error)
	DrainAndReplay(ctx context.Context) (orchestrator.ReplayResult, error)
	ClearQueue(ctx context.Context) (int64, error)
	Refresh(ctx context.Context) error
	SetOnline(online bool)
	ReleaseOnline()
}

// Config holds the server settings.
type Config struct {
	ListenAddr         string
	CORSAllowedOrigins []string // empty = CORS headers never set
	MaxBodyBytes       int64    // default 1 MiB
}

// Server is the local API server.
type Server struct {
	config  Config
	svc     Service
	http    *http.Server
	metrics *Metrics
	addr    string
}

func NewServer(cfg Config, svc Service) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		config:  cfg,
		svc:     svc,
		metrics: NewMetrics(),
	}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Start begins listening (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr().String()

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()
	slog.Info("api: listening", "addr", s.addr)
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string { return s.addr }

// Handler exposes the routed handler, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		requestScope,
		observe(s.metrics),
		recoverJSON,
		middleware.RequestSize(s.config.MaxBodyBytes),
		s.corsMiddleware,
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metricz", s.handleMetrics)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/state/{collection}", s.handleCollection)
		r.Get("/watch", s.handleWatch)

		r.Post("/actions", s.handleDispatch)

		r.Get("/status", s.handleStatus)
		r.Post("/refresh", s.handleRefresh)

		r.Get("/queue", s.handleQueueList)
		r.Post("/queue/replay", s.handleQueueReplay)
		r.Delete("/queue", s.handleQueueClear)

		r.Put("/network", s.handleNetworkSet)
		r.Delete("/network", s.handleNetworkRelease)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "online": st.Online})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
