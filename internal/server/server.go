// Package server exposes the moderation pipeline over HTTP. It owns the wire
// envelope: request parsing and validation, response shaping, status-code
// mapping, and the side channels (final-decision notifications, decision
// sinks, metrics) that run after a verdict is computed.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/whisper/moderation-api/internal/metrics"
	"github.com/whisper/moderation-api/internal/moderation"
	"github.com/whisper/moderation-api/internal/notify"
	"github.com/whisper/moderation-api/internal/ratelimit"
)

// Config holds tunable parameters for the HTTP server.
type Config struct {
	ListenAddr   string        // address to listen on, e.g. ":8080"
	MaxBodyBytes int64         // request body size cap
	ReadTimeout  time.Duration // timeout for reading the request
	WriteTimeout time.Duration // timeout for writing the response
}

// DefaultConfig returns a Config with sensible production defaults. The
// write timeout leaves room for two sequential classifier calls.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8080",
		MaxBodyBytes: 64 * 1024,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Moderator produces a fused decision for a raw message.
type Moderator interface {
	Moderate(ctx context.Context, raw string) moderation.FusedDecision
}

// DecisionSink receives every fused decision as a side effect of the request
// path. Sink failures are logged and never influence the response.
type DecisionSink interface {
	Record(ctx context.Context, rec moderation.DecisionRecord) error
}

// Server is the HTTP front of the moderation service.
type Server struct {
	config    Config
	moderator Moderator
	notifier  notify.Notifier
	limiter   *ratelimit.Limiter
	sinks     []DecisionSink

	mux        *http.ServeMux
	httpServer *http.Server
	startedAt  time.Time
}

// New creates a Server over the given moderator and notifier. notifier may
// be nil to disable final-decision notifications.
func New(config Config, moderator Moderator, notifier notify.Notifier) *Server {
	s := &Server{
		config:    config,
		moderator: moderator,
		notifier:  notifier,
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/moderate", s.handleModerate)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

// SetLimiter enables per-client rate limiting on the moderation endpoint.
func (s *Server) SetLimiter(l *ratelimit.Limiter) {
	s.limiter = l
}

// AddSink registers a decision sink.
func (s *Server) AddSink(sink DecisionSink) {
	s.sinks = append(s.sinks, sink)
}

// Handler returns the server's root handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	log.Printf("[server] listening on %s", s.config.ListenAddr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth responds with the server's liveness status as JSON, including
// uptime. Used by load balancers; the POST health_check sub-request is the
// client-facing equivalent.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Duration(0)
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt).Round(time.Second)
	}

	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}{
		Status: "ok",
		Uptime: uptime.String(),
	})
}

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] write response: %v", err)
	}
}
