// HTTP delivery surface for budget notifications.
//
// DESIGN: Three endpoints:
//   - POST /v1/events: push-style event delivery, body is either a raw
//     base64 payload or a push envelope wrapping one
//   - GET  /healthz:   liveness plus ledger store connectivity
//   - GET  /metrics:   Prometheus exposition
//
// Error mapping is deliberate: malformed payloads are the caller's problem
// (400); everything else is a 500 so the delivery platform keeps retrying
// and alerting.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/capguard/budget-sentinel/internal/config"
	"github.com/capguard/budget-sentinel/internal/handler"
	"github.com/capguard/budget-sentinel/internal/ledger"
	"github.com/capguard/budget-sentinel/internal/notification"
)

// Server exposes the notification handler over HTTP.
type Server struct {
	cfg      config.ServerConfig
	handler  *handler.Handler
	store    ledger.Store
	registry *prometheus.Registry
	srv      *http.Server
}

// New creates the HTTP server. registry may be nil to disable /metrics.
func New(cfg config.ServerConfig, h *handler.Handler, store ledger.Store, registry *prometheus.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		handler:  h,
		store:    store,
		registry: registry,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", s.handleEvent)
	mux.HandleFunc("/healthz", s.handleHealth)
	if registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the root HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start blocks on ListenAndServe until the server stops.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": msg, "type": "sentinel_error"},
	})
}

// handleEvent receives one budget notification delivery.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxEventBodySize)

	payload, messageID, err := notification.DecodeRequestBody(r.Body)
	if err != nil {
		log.Warn().Err(err).Msg("rejecting undecodable event body")
		s.writeError(w, "malformed event body", http.StatusBadRequest)
		return
	}

	logCtx := log.With()
	if messageID != "" {
		logCtx = logCtx.Str("message_id", messageID)
	}
	logger := logCtx.Logger()

	if err := s.handler.Handle(r.Context(), payload); err != nil {
		switch {
		case errors.Is(err, notification.ErrMalformedInput):
			logger.Warn().Err(err).Msg("malformed budget notification")
			s.writeError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, handler.ErrBillingAlreadyDisabled):
			// Still a 5xx: redelivery after a disable is an operational
			// anomaly that should stay visible on the delivery platform.
			logger.Warn().Err(err).Msg("notification for already-disabled billing")
			s.writeError(w, err.Error(), http.StatusInternalServerError)
		default:
			logger.Error().Err(err).Msg("failed to handle budget notification")
			s.writeError(w, "internal error handling notification", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth returns service health, including ledger store connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		health["status"] = "degraded"
		health["store"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if health["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(health)
}
