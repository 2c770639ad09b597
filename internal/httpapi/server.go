package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/propertyhub/leadvoice/internal/config"
	"github.com/propertyhub/leadvoice/internal/conversation"
	"github.com/propertyhub/leadvoice/internal/gateway"
	"github.com/propertyhub/leadvoice/internal/observability"
	"github.com/propertyhub/leadvoice/internal/sessionstore"
	"github.com/propertyhub/leadvoice/internal/store"
	"github.com/propertyhub/leadvoice/internal/webhook"
)

// Server wires the telephony websocket, the status webhook and the
// operational endpoints onto one router.
type Server struct {
	cfg       config.Config
	store     store.Store
	snapshots *sessionstore.Store
	gateway   *gateway.Gateway
	webhook   *webhook.Handler
	manager   *conversation.Manager
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func New(cfg config.Config, st store.Store, snapshots *sessionstore.Store,
	gw *gateway.Gateway, wh *webhook.Handler, manager *conversation.Manager,
	metrics *observability.Metrics, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		snapshots: snapshots,
		gateway:   gw,
		webhook:   wh,
		manager:   manager,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/ws/exotel", s.gateway.HandleWS)
	r.Post("/webhooks/exotel/call-status", s.webhook.ServeHTTP)

	r.Get("/live", s.handleLive)
	r.Get("/ready", s.handleReady)
	r.Get("/health/detailed", s.handleDetailedHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	return r
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  "database unreachable",
		})
		return
	}
	if err := s.snapshots.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  "session store unreachable",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleDetailedHealth probes each dependency separately so an operator
// can tell which leg of the pipeline is limping.
func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{
		"database":      "ok",
		"session_store": "ok",
	}
	healthy := true

	if err := s.store.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := s.snapshots.Ping(ctx); err != nil {
		checks["session_store"] = err.Error()
		healthy = false
	}
	if s.cfg.ProviderMode == "mock" || (s.cfg.ProviderMode == "auto" && !s.cfg.HasLiveProviderKeys()) {
		checks["providers"] = "mock mode"
	} else {
		checks["providers"] = "live keys configured"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]any{
		"healthy":            healthy,
		"checks":             checks,
		"active_calls":       s.manager.ActiveCount(),
		"active_connections": s.gateway.ActiveConnections(),
		"turn_latency":       s.metrics.Stages.Snapshot(),
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
