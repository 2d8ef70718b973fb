package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/models"
	"github.com/ternarybob/fabrica/internal/services/promotion"
)

// PromotionHandler handles cross-department promotion API requests
type PromotionHandler struct {
	coordinator *promotion.Coordinator
	logger      arbor.ILogger
}

// NewPromotionHandler creates a new promotion handler
func NewPromotionHandler(coordinator *promotion.Coordinator, logger arbor.ILogger) *PromotionHandler {
	return &PromotionHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// PromoteRequest is the POST /api/promotions body.
type PromoteRequest struct {
	SourceType       string `json:"source_type" validate:"required,oneof=project trend"`
	SourceID         string `json:"source_id" validate:"required"`
	TargetDepartment string `json:"target_department" validate:"required,oneof=intelligence strategy creative"`
	Name             string `json:"name" validate:"max=200"`
	Company          string `json:"company" validate:"max=200"`
	Autonomy         string `json:"autonomy" validate:"omitempty,oneof=manual full_auto supervised"`
	Notes            string `json:"notes" validate:"max=10000"`
}

// PromoteHandler promotes a project or trend cluster into a target department
// POST /api/promotions
func (h *PromotionHandler) PromoteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	actor := Actor(r)
	if actor == "" {
		WriteError(w, http.StatusBadRequest, "actor identity is required")
		return
	}

	var req PromoteRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	target, err := h.coordinator.Promote(r.Context(), &promotion.PromoteRequest{
		SourceType:       models.SourceType(req.SourceType),
		SourceID:         req.SourceID,
		TargetDepartment: models.Department(req.TargetDepartment),
		Actor:            actor,
		Overrides: &promotion.Overrides{
			Name:     req.Name,
			Company:  req.Company,
			Autonomy: models.AutonomyLevel(req.Autonomy),
			Notes:    req.Notes,
		},
	})
	if err != nil {
		h.logger.Warn().Err(err).
			Str("source_id", req.SourceID).
			Str("target_department", req.TargetDepartment).
			Msg("Promotion failed")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, target)
}

// ProvenanceHandler returns the reference edges pointing at a project
// GET /api/projects/{id}/provenance
func (h *PromotionHandler) ProvenanceHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	refs, err := h.coordinator.ListProvenance(r.Context(), projectID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"references": refs})
}

// PromotionsHandler returns the reference edges originating at a source
// GET /api/promotions?source=proj_x
func (h *PromotionHandler) PromotionsHandler(w http.ResponseWriter, r *http.Request) {
	sourceID := r.URL.Query().Get("source")
	if sourceID == "" {
		WriteError(w, http.StatusBadRequest, "source query parameter is required")
		return
	}

	refs, err := h.coordinator.ListPromotions(r.Context(), sourceID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"references": refs})
}
