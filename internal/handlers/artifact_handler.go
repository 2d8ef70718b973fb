package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/services/lifecycle"
)

// ArtifactHandler handles artifact review API requests
type ArtifactHandler struct {
	lifecycle *lifecycle.Service
	logger    arbor.ILogger
}

// NewArtifactHandler creates a new artifact handler
func NewArtifactHandler(lifecycleService *lifecycle.Service, logger arbor.ILogger) *ArtifactHandler {
	return &ArtifactHandler{
		lifecycle: lifecycleService,
		logger:    logger,
	}
}

// GetHandler returns a single artifact version
// GET /api/artifacts/{id}
func (h *ArtifactHandler) GetHandler(w http.ResponseWriter, r *http.Request, artifactID string) {
	artifact, err := h.lifecycle.GetArtifact(r.Context(), artifactID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, artifact)
}

// DecisionRequest is the POST /api/artifacts/{id}/decision body. Notes are
// mandatory for rejections; the service enforces that.
type DecisionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject escalate"`
	Notes  string `json:"notes" validate:"max=10000"`
}

// DecisionHandler applies a reviewer verdict to an artifact version
// POST /api/artifacts/{id}/decision
func (h *ArtifactHandler) DecisionHandler(w http.ResponseWriter, r *http.Request, artifactID string) {
	actor := Actor(r)
	if actor == "" {
		WriteError(w, http.StatusBadRequest, "actor identity is required")
		return
	}

	var req DecisionRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	artifact, err := h.lifecycle.SubmitDecision(r.Context(), artifactID, lifecycle.DecisionAction(req.Action), actor, req.Notes)
	if err != nil {
		h.logger.Warn().Err(err).
			Str("artifact_id", artifactID).
			Str("action", req.Action).
			Msg("Decision rejected")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, artifact)
}
