// Package handler provides HTTP handlers for the worker's status API.
// Everything here is read-only: handlers report what the scanner saw and
// what the store recorded, they never change either.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/TanguyDH/matchIQ/internal/api/respond"
	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/scanner"
	"github.com/TanguyDH/matchIQ/internal/trigger"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// HealthChecker reports whether a backend is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Pinger is a volatile cache that can be pinged.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ScanStatus exposes the last scan tick.
type ScanStatus interface {
	LastResult() *scanner.TickResult
	LastSnapshots() []engine.MatchSnapshot
}

// TriggerLister lists recent triggers.
type TriggerLister interface {
	RecentTriggers(ctx context.Context, limit int) ([]trigger.Trigger, error)
}

// Deps are the handler's backends. Nil fields report "not configured".
type Deps struct {
	DB         HealthChecker
	Cache      Pinger
	CacheKind  string // "redis" or "memory"
	Scanner    ScanStatus
	Triggers   TriggerLister
	AlertType  engine.ValueType
	MockData   bool
	StartedAt  time.Time
	CheckLimit time.Duration
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	deps Deps
}

// New creates a Handler with shared dependencies.
func New(deps Deps) *Handler {
	if deps.CheckLimit <= 0 {
		deps.CheckLimit = 3 * time.Second
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	return &Handler{deps: deps}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns service name, version, uptime and data source.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	source := "sportmonks"
	if h.deps.MockData {
		source = "mock"
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":       "MatchIQ Worker",
		"version":    Version,
		"status":     "running",
		"alert_type": h.deps.AlertType,
		"source":     source,
		"uptime":     time.Since(h.deps.StartedAt).Round(time.Second).String(),
		"docs":       "/docs/index.html",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB == nil {
		h.unhealthy(w, "database", "not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.deps.CheckLimit)
	defer cancel()
	if err := h.deps.DB.HealthCheck(ctx); err != nil {
		h.unhealthy(w, "database", "disconnected")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckRedis verifies the dedup cache backend.
// @Summary Dedup cache health check
// @Description Pings the dedup cache (Redis, or the in-process fallback).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/redis [get]
func (h *Handler) HealthCheckRedis(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		h.unhealthy(w, "cache", "not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.deps.CheckLimit)
	defer cancel()
	if err := h.deps.Cache.Ping(ctx); err != nil {
		h.unhealthy(w, "cache", "disconnected")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     "connected",
		"backend":   h.deps.CacheKind,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) unhealthy(w http.ResponseWriter, component, state string) {
	respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
		"status":    "unhealthy",
		component:   state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
