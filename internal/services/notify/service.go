// Package notify persists fire-and-forget human-attention signals.
// Delivery transport (email/push) is a separate concern; rows written here
// are polled by the UI. A failed write is logged and swallowed so it can
// never roll back the caller's primary state transition.
package notify

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/common"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
)

// Service writes notification rows best-effort.
type Service struct {
	notifications interfaces.NotificationStorage
	memberships   interfaces.MembershipStorage
	logger        arbor.ILogger
}

// NewService creates a new notification service
func NewService(notifications interfaces.NotificationStorage, memberships interfaces.MembershipStorage, logger arbor.ILogger) *Service {
	return &Service{
		notifications: notifications,
		memberships:   memberships,
		logger:        logger,
	}
}

// Notify records a notification for a single user. Errors are logged, never
// returned.
func (s *Service) Notify(ctx context.Context, userID, projectID string, nType models.NotificationType, title, body string) {
	n := &models.Notification{
		ID:        common.NewNotificationID(),
		UserID:    userID,
		ProjectID: projectID,
		Type:      nType,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now(),
	}

	if err := s.notifications.SaveNotification(ctx, n); err != nil {
		s.logger.Warn().
			Err(err).
			Str("user_id", userID).
			Str("project_id", projectID).
			Str("type", string(nType)).
			Msg("Failed to save notification, continuing")
		return
	}

	s.logger.Debug().
		Str("notification_id", n.ID).
		Str("user_id", userID).
		Str("type", string(nType)).
		Msg("Notification recorded")
}

// NotifyMembers fans a notification out to every member of a project.
func (s *Service) NotifyMembers(ctx context.Context, projectID string, nType models.NotificationType, title, body string) {
	members, err := s.memberships.ListByProject(ctx, projectID)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("project_id", projectID).
			Msg("Failed to list members for notification, continuing")
		return
	}

	for _, member := range members {
		s.Notify(ctx, member.UserID, projectID, nType, title, body)
	}
}
