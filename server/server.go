// Package server implements the task tracker HTTP server, REST API and
// auth.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Barrelito/sam-a-sub000/config"
	"github.com/Barrelito/sam-a-sub000/distribution"
	"github.com/Barrelito/sam-a-sub000/metrics"
	"github.com/Barrelito/sam-a-sub000/rollup"
	"github.com/Barrelito/sam-a-sub000/server/api"
	"github.com/Barrelito/sam-a-sub000/tracker"
)

// Server is the task tracker HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	tracker      *tracker.Service
	distribution *distribution.Engine
	rollup       *rollup.Aggregator
	metrics      *metrics.Metrics
	handlers     *api.Handlers

	users map[string]config.UserConfig

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	startTime time.Time
	version   string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	users := make(map[string]config.UserConfig, len(cfg.Auth.Users))
	for _, u := range cfg.Auth.Users {
		users[u.Username] = u
	}
	return &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger,
		users:     users,
		startTime: time.Now(),
		version:   ver,
	}
}

// SetTracker attaches the task service to the server.
func (s *Server) SetTracker(svc *tracker.Service) {
	s.tracker = svc
}

// SetDistribution attaches the distribution engine to the server.
func (s *Server) SetDistribution(e *distribution.Engine) {
	s.distribution = e
}

// SetRollup attaches the rollup aggregator to the server.
func (s *Server) SetRollup(a *rollup.Aggregator) {
	s.rollup = a
}

// SetMetrics enables request counting and the /metrics endpoint.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	s.registerRoutes()

	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":9090"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler registers routes and returns the root handler, for embedding the
// server in tests or another listener.
func (s *Server) Handler() http.Handler {
	s.registerRoutes()
	return s.mux
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Tracker:      s.tracker,
		Distribution: s.distribution,
		Rollup:       s.rollup,
		Logger:       s.logger,
		Version:      s.version,
		StartAt:      s.startTime,
	}
	s.handlers = h

	// Public routes (no auth required)
	s.mux.Handle("POST /api/auth/login", s.instrument(http.HandlerFunc(s.handleLogin)))
	s.mux.Handle("GET /api/status", s.instrument(h.StatusHandler()))
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Protected API, wrapped in auth middleware
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.authMiddleware(s.instrument(apiMux)))
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests by matched route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		// ServeMux records the matched pattern on the request.
		s.metrics.ObserveRequest(r.Pattern, rec.code)
	})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
