// Package httpserver provides the admin HTTP API of the review reply service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/database"
	"github.com/helixir/review-reply-service/internal/fetcher"
	"github.com/helixir/review-reply-service/internal/repository"
)

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath exposes Prometheus metrics when non-empty.
	MetricsPath string
}

// Server is the read-only admin API: health probes, metrics, stored reviews and
// business discovery.
type Server struct {
	cfg     Config
	reviews repository.ReviewRepository
	fetcher fetcher.Fetcher
	health  HealthChecker
	logger  zerolog.Logger

	handler http.Handler
	srv     *http.Server
}

// NewServer creates the admin server. A nil fetcher disables /api/v1/businesses.
func NewServer(cfg Config, reviews repository.ReviewRepository, f fetcher.Fetcher, health HealthChecker, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		reviews: reviews,
		fetcher: f,
		health:  health,
		logger:  logger.With().Str("component", "http-server").Logger(),
	}
	s.handler = s.routes()
	s.srv = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		requestIDMiddleware,
		accessLogMiddleware(s.logger),
	)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if s.cfg.MetricsPath != "" {
		r.Handle(s.cfg.MetricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))
		r.Get("/reviews", s.listReviews)
		r.Get("/reviews/{reviewID}", s.getReview)
		r.Get("/businesses", s.searchBusinesses)
	})
	return r
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	s.logger.Info().Str("address", ln.Addr().String()).Msg("HTTP server listening")
	return s.srv.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// healthz is liveness only and never touches the database.
func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readiness struct {
	Status   string                 `json:"status"`
	Database *database.HealthStatus `json:"database,omitempty"`
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusServiceUnavailable, readiness{Status: "not_ready"})
		return
	}

	db := s.health.Health(r.Context())
	if db.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, readiness{Status: "not_ready", Database: &db})
		return
	}
	writeJSON(w, http.StatusOK, readiness{Status: "ready", Database: &db})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
