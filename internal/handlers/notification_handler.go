package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/interfaces"
)

// NotificationHandler handles notification polling requests
type NotificationHandler struct {
	notifications interfaces.NotificationStorage
	logger        arbor.ILogger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications interfaces.NotificationStorage, logger arbor.ILogger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        logger,
	}
}

// ListHandler returns the acting user's notifications, newest first
// GET /api/notifications?limit=50
func (h *NotificationHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	actor := Actor(r)
	if actor == "" {
		WriteError(w, http.StatusBadRequest, "actor identity is required")
		return
	}

	notifications, err := h.notifications.ListByUser(r.Context(), actor, QueryInt(r, "limit", 50))
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", actor).Msg("Failed to list notifications")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}
