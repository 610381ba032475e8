// Package admin serves the operational endpoints: liveness, readiness and
// Prometheus metrics.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scottdmilner/pipebot/internal/auth"
	"github.com/scottdmilner/pipebot/internal/config"
)

// Config holds admin server configuration.
type Config struct {
	Listen string
	// Token guards /metrics when set.
	Token string
}

// FromConfig converts the admin section of the service config.
func FromConfig(cfg config.AdminConfig) Config {
	return Config{Listen: cfg.Listen, Token: cfg.Token}
}

// Check reports whether one dependency is ready.
type Check struct {
	Name  string
	Ready func() bool
}

// ChannelCheck is ready once ch is closed.
func ChannelCheck(name string, ch <-chan struct{}) Check {
	return Check{Name: name, Ready: func() bool {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}}
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Waiting       []string `json:"waiting,omitempty"`
}

// Server represents the admin HTTP server.
type Server struct {
	config    Config
	metrics   http.Handler
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	mu     sync.Mutex
	checks []Check

	ready     chan struct{}
	readyOnce sync.Once
	addr      net.Addr
}

// New creates an admin server. metricsHandler serves /metrics.
func New(config Config, metricsHandler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		metrics:   metricsHandler,
		logger:    logger,
		startedAt: time.Now(),
		ready:     make(chan struct{}),
	}
}

// AddCheck registers a readiness check. /readyz returns 200 only when every
// registered check passes.
func (s *Server) AddCheck(c Check) {
	s.mu.Lock()
	s.checks = append(s.checks, c)
	s.mu.Unlock()
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.addr
	default:
		return nil
	}
}

// Start binds the listener and serves until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("admin server listen on %s: %w", s.config.Listen, err)
	}

	s.server = &http.Server{
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.addr = ln.Addr()
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("admin server starting", "listen", s.addr.String(), "metrics_auth", s.config.Token != "")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("admin server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("admin server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.With(auth.RequireToken(s.config.Token)).Handle("/metrics", s.metrics)

	return r
}

// loggingMiddleware logs HTTP requests at debug level; probes are frequent.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	checks := append([]Check(nil), s.checks...)
	s.mu.Unlock()

	var waiting []string
	for _, c := range checks {
		if !c.Ready() {
			waiting = append(waiting, c.Name)
		}
	}

	resp := HealthResponse{
		Status:        "ready",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Waiting:       waiting,
	}
	if len(waiting) > 0 {
		resp.Status = "not ready"
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}
