package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
	"github.com/ternarybob/fabrica/internal/services/cache"
)

// RoleResolver resolves an actor's membership role with a TTL cache in
// front of storage. The cache is invalidated whenever memberships change.
type RoleResolver struct {
	memberships interfaces.MembershipStorage
	roles       *cache.Cache
	logger      arbor.ILogger
}

// NewRoleResolver creates a role resolver with the given cache TTL.
func NewRoleResolver(memberships interfaces.MembershipStorage, ttl time.Duration, logger arbor.ILogger) *RoleResolver {
	return &RoleResolver{
		memberships: memberships,
		roles:       cache.New(ttl, nil),
		logger:      logger,
	}
}

func roleKey(projectID, userID string) string {
	return projectID + "|" + userID
}

// Resolve returns the actor's role on the project, or ErrForbidden when no
// membership exists.
func (r *RoleResolver) Resolve(ctx context.Context, projectID, userID string) (models.Role, error) {
	if cached, _, ok := r.roles.Get(roleKey(projectID, userID)); ok {
		return cached.(models.Role), nil
	}

	role, err := r.memberships.GetRole(ctx, projectID, userID)
	if err != nil {
		return "", fmt.Errorf("%w: user %s has no role on project %s", models.ErrForbidden, userID, projectID)
	}

	r.roles.Set(roleKey(projectID, userID), role)
	return role, nil
}

// Invalidate drops a cached role after a membership change.
func (r *RoleResolver) Invalidate(projectID, userID string) {
	r.roles.Invalidate(roleKey(projectID, userID))
}
