package models

import "time"

// NotificationType labels the event a notification reports.
type NotificationType string

const (
	NotificationDecision   NotificationType = "decision"
	NotificationEscalation NotificationType = "escalation"
	NotificationRetry      NotificationType = "retry"
	NotificationPromotion  NotificationType = "promotion"
	NotificationTransition NotificationType = "transition"
)

// Notification is a fire-and-forget human-attention signal. Delivery
// transport is out of scope; rows are persisted for the UI to poll.
// Duplicates are acceptable (escalation is idempotent at the UI level).
type Notification struct {
	ID        string           `json:"id" badgerhold:"key"`
	UserID    string           `json:"user_id" badgerholdIndex:"UserID"`
	ProjectID string           `json:"project_id,omitempty"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
