package handler

import (
	"net/http"
	"strconv"

	"github.com/TanguyDH/matchIQ/internal/api/respond"
	"github.com/TanguyDH/matchIQ/internal/trigger"
)

const (
	defaultTriggerLimit = 20
	maxTriggerLimit     = 100
)

// GetScannerStatus returns the last scan tick's counters.
// @Summary Scanner status
// @Description Returns the counters of the most recent scan tick, or status "pending" before the first tick completes.
// @Tags scanner
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} respond.ErrorResponse
// @Router /scanner/status [get]
func (h *Handler) GetScannerStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Scanner == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "SCANNER_DISABLED", "Scanner is not running in this process")
		return
	}
	last := h.deps.Scanner.LastResult()
	if last == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"status": "pending"})
		return
	}
	status := "ok"
	if last.Err != "" {
		status = "error"
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"summary":     last.Summary(),
		"duration_ms": last.Duration.Milliseconds(),
		"last_tick":   last,
	})
}

// GetLiveMatches returns the snapshots fetched by the last successful tick.
// @Summary Live matches
// @Description Returns the normalized live match snapshots seen by the last successful scan tick.
// @Tags scanner
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} respond.ErrorResponse
// @Router /live [get]
func (h *Handler) GetLiveMatches(w http.ResponseWriter, r *http.Request) {
	if h.deps.Scanner == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "SCANNER_DISABLED", "Scanner is not running in this process")
		return
	}
	snaps := h.deps.Scanner.LastSnapshots()
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"count":   len(snaps),
		"matches": snaps,
	})
}

// GetRecentTriggers returns the newest stored triggers.
// @Summary Recent triggers
// @Description Returns the most recent triggers with their evidence, newest first.
// @Tags triggers
// @Produce json
// @Param limit query int false "Maximum triggers to return (1-100, default 20)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /triggers/recent [get]
func (h *Handler) GetRecentTriggers(w http.ResponseWriter, r *http.Request) {
	if h.deps.Triggers == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "STORE_DISABLED", "Trigger store is not configured")
		return
	}

	limit := defaultTriggerLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTriggerLimit {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer between 1 and 100")
			return
		}
		limit = n
	}

	triggers, err := h.deps.Triggers.RecentTriggers(r.Context(), limit)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "QUERY_FAILED", "Failed to load triggers", err.Error())
		return
	}
	if triggers == nil {
		triggers = []trigger.Trigger{}
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"count":    len(triggers),
		"triggers": triggers,
	})
}
