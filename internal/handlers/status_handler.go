package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/common"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
)

// StatusHandler reports application health and queue depth
type StatusHandler struct {
	jobs      interfaces.JobStorage
	startedAt time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(jobs interfaces.JobStorage, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		jobs:      jobs,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// HealthHandler returns a liveness probe response
// GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionHandler returns build information
// GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
	})
}

// StatusHandler returns queue depth per job status plus uptime
// GET /api/status
func (h *StatusHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	counts := make(map[string]int)
	for _, status := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusQueued, models.JobStatusRunning,
		models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusOrphaned,
	} {
		count, err := h.jobs.CountByStatus(r.Context(), status)
		if err != nil {
			h.logger.Warn().Err(err).Str("status", string(status)).Msg("Failed to count jobs")
			continue
		}
		counts[string(status)] = count
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
		"jobs":    counts,
	})
}

// NotFoundHandler is the fallback for unmatched API routes
func (h *StatusHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "endpoint not found")
}
