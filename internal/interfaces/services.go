package interfaces

import (
	"context"

	"github.com/ternarybob/fabrica/internal/models"
)

// Notifier accepts fire-and-forget human-attention signals. Implementations
// must never fail the caller's primary operation; errors are logged and
// swallowed internally.
type Notifier interface {
	Notify(ctx context.Context, userID, projectID string, nType models.NotificationType, title, body string)
	// NotifyMembers fans a notification out to every member of a project.
	NotifyMembers(ctx context.Context, projectID string, nType models.NotificationType, title, body string)
}

// EventPublisher broadcasts best-effort state-change events to connected
// clients. No delivery guarantee; polling remains the source of truth.
type EventPublisher interface {
	PublishProjectEvent(projectID string, event string, payload any)
	PublishJobEvent(jobID, projectID string, event string, payload any)
}

// RoleResolver resolves an actor's role on a project. Backed by membership
// storage with a TTL cache in front.
type RoleResolver interface {
	Resolve(ctx context.Context, projectID, userID string) (models.Role, error)
	Invalidate(projectID, userID string)
}
