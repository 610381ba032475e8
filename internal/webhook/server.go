package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scottdmilner/pipebot/internal/metrics"
	"github.com/scottdmilner/pipebot/internal/notify"
)

// route is an endpoint with its resolved handler.
type route struct {
	EndpointConfig
	handle HandlerFunc
}

// Server represents the webhook HTTP server.
type Server struct {
	config  Config
	sender  notify.Sender
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
	now     func() time.Time

	// routes maps URL paths to their policies. Read-only after New.
	routes map[string]*route

	ready     chan struct{}
	readyOnce sync.Once
	addr      net.Addr
}

// New creates a new webhook server instance. Every endpoint must name a
// known handler.
func New(config Config, sender notify.Sender, m *metrics.Metrics, logger *slog.Logger) (*Server, error) {
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = DefaultDeliveryTimeout
	}

	routes := make(map[string]*route, len(config.Endpoints))
	for _, ep := range config.Endpoints {
		if ep.MaxBodySize == 0 {
			ep.MaxBodySize = DefaultMaxBodySize
		}
		handle, err := handlerFor(ep.Handler)
		if err != nil {
			return nil, fmt.Errorf("webhook endpoint %q: %w", ep.Path, err)
		}
		if _, dup := routes[ep.Path]; dup {
			return nil, fmt.Errorf("webhook endpoint %q registered twice", ep.Path)
		}
		routes[ep.Path] = &route{EndpointConfig: ep, handle: handle}
	}

	return &Server{
		config:  config,
		sender:  sender,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		routes:  routes,
		ready:   make(chan struct{}),
	}, nil
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
		return fmt.Errorf("webhook server listen on %s: %w", s.config.Listen, err)
	}

	s.server = &http.Server{
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10*time.Second + s.config.DeliveryTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.addr = ln.Addr()
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("webhook server starting", "listen", s.addr.String(), "endpoints", len(s.routes))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	for path := range s.routes {
		r.Post(path, s.handleWebhook)
	}

	// Unknown paths and wrong methods look the same to callers.
	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleNotFound)

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		s.metrics.WebhookRequest(s.routeLabel(r.URL.Path), ww.Status(), elapsed)
		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// routeLabel bounds metric cardinality to configured paths.
func (s *Server) routeLabel(path string) string {
	if _, ok := s.routes[path]; ok || path == "/" {
		return path
	}
	return "unmatched"
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusBadRequest)
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	s.respondError(w, http.StatusNotFound, "not found")
}

// handleWebhook reads the body under the route's size limit and dispatches it.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.routes[r.URL.Path]
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, rt.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	resp := s.Dispatch(r.Context(), Request{
		Path:   r.URL.Path,
		Header: r.Header,
		Body:   body,
	})
	s.respond(w, resp)
}

// Dispatch verifies, parses and delivers one webhook request. Delivery runs
// synchronously under the server's delivery timeout, detached from ctx
// cancellation; its failure is logged and does not change the response.
func (s *Server) Dispatch(ctx context.Context, req Request) Response {
	rt, ok := s.routes[req.Path]
	if !ok {
		return Response{Status: http.StatusNotFound, Body: ErrorResponse{Error: "not found"}}
	}

	if int64(len(req.Body)) > rt.MaxBodySize {
		return Response{Status: http.StatusRequestEntityTooLarge, Body: ErrorResponse{Error: "payload too large"}}
	}

	if !Verify(req.Body, req.Header.Get(rt.SignatureHeader), rt.Secret) {
		s.metrics.SignatureFailure(rt.Path)
		s.logger.Warn("webhook signature verification failed",
			"path", rt.Path,
			"header", rt.SignatureHeader,
		)
		return Response{Status: http.StatusUnauthorized, Body: ErrorResponse{Error: "unauthorized"}}
	}

	msg, err := rt.handle(req.Body, s.now())
	if err != nil {
		s.logger.Warn("webhook payload rejected", "path", rt.Path, "handler", rt.Handler, "error", err)
		return Response{Status: http.StatusBadRequest, Body: ErrorResponse{Error: "invalid payload"}}
	}

	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.DeliveryTimeout)
	defer cancel()

	err = s.sender.Send(deliverCtx, rt.ChannelID, msg)
	s.metrics.Delivery(rt.ChannelID, err)
	if err != nil {
		s.logger.Error("webhook notification delivery failed",
			"path", rt.Path,
			"channel_id", rt.ChannelID,
			"error", err,
		)
	} else {
		s.logger.Info("webhook notification delivered", "path", rt.Path, "channel_id", rt.ChannelID)
	}

	return Response{Status: http.StatusOK, Body: StatusResponse{Status: "ok"}}
}

func (s *Server) respond(w http.ResponseWriter, resp Response) {
	if resp.Body == nil {
		w.WriteHeader(resp.Status)
		return
	}
	s.respondJSON(w, resp.Status, resp.Body)
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
