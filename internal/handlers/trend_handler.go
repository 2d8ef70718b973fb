package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/common"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
)

// TrendHandler handles intelligence trend cluster API requests
type TrendHandler struct {
	trends interfaces.TrendStorage
	logger arbor.ILogger
}

// NewTrendHandler creates a new trend handler
func NewTrendHandler(trends interfaces.TrendStorage, logger arbor.ILogger) *TrendHandler {
	return &TrendHandler{
		trends: trends,
		logger: logger,
	}
}

// TrendSignalRequest is one signal in a trend cluster submission.
type TrendSignalRequest struct {
	Name       string  `json:"name" validate:"required,max=200"`
	Lifecycle  string  `json:"lifecycle" validate:"required,oneof=emerging peaking declining"`
	Velocity   float64 `json:"velocity" validate:"min=0,max=1"`
	Confidence float64 `json:"confidence" validate:"min=0,max=1"`
}

// SaveTrendRequest is the POST /api/trends body.
type SaveTrendRequest struct {
	ID      string               `json:"id"`
	Name    string               `json:"name" validate:"required,max=200"`
	Summary string               `json:"summary" validate:"max=10000"`
	Signals []TrendSignalRequest `json:"signals" validate:"max=100,dive"`
}

// SaveHandler creates or updates a trend cluster
// POST /api/trends
func (h *TrendHandler) SaveHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req SaveTrendRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	now := time.Now()
	trend := &models.TrendCluster{
		ID:         req.ID,
		Name:       req.Name,
		Department: models.DepartmentIntelligence,
		Summary:    req.Summary,
		UpdatedAt:  now,
	}
	if trend.ID == "" {
		trend.ID = common.NewTrendID()
		trend.CreatedAt = now
	} else if existing, err := h.trends.GetTrend(r.Context(), trend.ID); err == nil {
		trend.CreatedAt = existing.CreatedAt
	} else {
		trend.CreatedAt = now
	}

	for _, sig := range req.Signals {
		trend.Signals = append(trend.Signals, models.TrendSignal{
			Name:       sig.Name,
			Lifecycle:  sig.Lifecycle,
			Velocity:   sig.Velocity,
			Confidence: sig.Confidence,
		})
	}

	if err := h.trends.SaveTrend(r.Context(), trend); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save trend")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, trend)
}

// ListHandler returns trend clusters
// GET /api/trends?limit=50
func (h *TrendHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	trends, err := h.trends.ListTrends(r.Context(), QueryInt(r, "limit", 50))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"trends": trends})
}

// GetHandler returns a single trend cluster
// GET /api/trends/{id}
func (h *TrendHandler) GetHandler(w http.ResponseWriter, r *http.Request, trendID string) {
	trend, err := h.trends.GetTrend(r.Context(), trendID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, trend)
}
