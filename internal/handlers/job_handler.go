package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
	"github.com/ternarybob/fabrica/internal/services/pipeline"
)

// JobHandler handles pipeline job API requests, including the worker-pool
// claim and report protocol.
type JobHandler struct {
	pipeline *pipeline.Service
	logger   arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(pipelineService *pipeline.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		pipeline: pipelineService,
		logger:   logger,
	}
}

// ListHandler returns jobs matching the filter, newest first
// GET /api/jobs?project=proj_x&status=failed&type=build&limit=50&offset=0
func (h *JobHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobs, err := h.pipeline.List(r.Context(), &interfaces.JobListOptions{
		ProjectID: r.URL.Query().Get("project"),
		Status:    r.URL.Query().Get("status"),
		Type:      r.URL.Query().Get("type"),
		Limit:     QueryInt(r, "limit", 50),
		Offset:    QueryInt(r, "offset", 0),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetHandler returns a single job
// GET /api/jobs/{id}
func (h *JobHandler) GetHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.pipeline.Get(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// PositionHandler returns the queue-position estimate for a waiting job
// GET /api/jobs/{id}/position
func (h *JobHandler) PositionHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	position, err := h.pipeline.QueuePosition(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, position)
}

// RetryHandler relaunches a failed job as a fresh row
// POST /api/jobs/{id}/retry
func (h *JobHandler) RetryHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	retry, err := h.pipeline.Retry(r.Context(), jobID, Actor(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, retry)
}

// EscalateRequest is the POST /api/jobs/{id}/escalate body.
type EscalateRequest struct {
	Note string `json:"note" validate:"max=10000"`
}

// EscalateHandler raises a failed job to human attention
// POST /api/jobs/{id}/escalate
func (h *JobHandler) EscalateHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	var req EscalateRequest
	if r.ContentLength > 0 && !DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.pipeline.Escalate(r.Context(), jobID, Actor(r), req.Note); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "job escalated")
}

// ReleaseHandler opens the human release gate on a pending job
// POST /api/jobs/{id}/release
func (h *JobHandler) ReleaseHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.pipeline.Release(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// ClaimRequest is the POST /api/worker/claim body. An empty capability set
// claims any job type.
type ClaimRequest struct {
	Capabilities []string `json:"capabilities" validate:"max=20,dive,max=50"`
}

// ClaimHandler hands the oldest claimable job to a worker
// POST /api/worker/claim
func (h *JobHandler) ClaimHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req ClaimRequest
	if r.ContentLength > 0 && !DecodeAndValidate(w, r, &req) {
		return
	}

	capabilities := make([]models.JobType, len(req.Capabilities))
	for i, c := range req.Capabilities {
		capabilities[i] = models.JobType(c)
	}

	job, err := h.pipeline.Claim(r.Context(), capabilities)
	if err != nil {
		h.logger.Error().Err(err).Msg("Claim failed")
		WriteServiceError(w, err)
		return
	}
	if job == nil {
		// Empty queue is the common case, not an error.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// ProgressRequest is the worker progress report body.
type ProgressRequest struct {
	Turn       int    `json:"turn" validate:"min=0"`
	MaxTurns   int    `json:"max_turns" validate:"min=0"`
	LastAction string `json:"last_action" validate:"max=500"`
}

// ProgressHandler records a worker progress snapshot and refreshes the lease
// POST /api/worker/jobs/{id}/progress
func (h *JobHandler) ProgressHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	var req ProgressRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	err := h.pipeline.ReportProgress(r.Context(), jobID, &models.JobProgress{
		Turn:       req.Turn,
		MaxTurns:   req.MaxTurns,
		LastAction: req.LastAction,
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "progress recorded")
}

// CompleteRequest is the worker completion report body. The result is
// opaque here; generation jobs carry content and a quality score.
type CompleteRequest struct {
	Result json.RawMessage `json:"result"`
}

// CompleteHandler records a successful job outcome
// POST /api/worker/jobs/{id}/complete
func (h *JobHandler) CompleteHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	var req CompleteRequest
	if r.ContentLength > 0 && !DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.pipeline.Complete(r.Context(), jobID, req.Result); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Completion report rejected")
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "job completed")
}

// FailRequest is the worker failure report body.
type FailRequest struct {
	Error string `json:"error" validate:"required,max=2000"`
}

// FailHandler records a failed job outcome
// POST /api/worker/jobs/{id}/fail
func (h *JobHandler) FailHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	var req FailRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.pipeline.Fail(r.Context(), jobID, req.Error); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "job failed")
}
