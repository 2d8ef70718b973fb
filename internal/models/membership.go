package models

import "time"

// Role is a department-scoped membership role used as the guard on every
// lifecycle transition.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// CanReview reports whether the role may apply review decisions and
// lifecycle transitions.
func (r Role) CanReview() bool {
	return r == RoleOwner || r == RoleEditor
}

// Membership grants a user a role on a project.
type Membership struct {
	ID        string    `json:"id" badgerhold:"key"`
	ProjectID string    `json:"project_id" badgerholdIndex:"ProjectID"`
	UserID    string    `json:"user_id" badgerholdIndex:"UserID"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
