package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/fabrica/internal/common"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
)

// GetProject returns a project by ID.
func (s *Service) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	return s.projects.GetProject(ctx, projectID)
}

// ListProjects returns projects matching the filter.
func (s *Service) ListProjects(ctx context.Context, opts *interfaces.ProjectListOptions) ([]*models.Project, error) {
	return s.projects.ListProjects(ctx, opts)
}

// ListArtifacts returns a project's artifact versions.
func (s *Service) ListArtifacts(ctx context.Context, projectID string) ([]*models.Artifact, error) {
	return s.artifacts.ListArtifacts(ctx, projectID)
}

// GetArtifact returns a single artifact version.
func (s *Service) GetArtifact(ctx context.Context, artifactID string) (*models.Artifact, error) {
	return s.artifacts.GetArtifact(ctx, artifactID)
}

// ListMembers returns a project's memberships.
func (s *Service) ListMembers(ctx context.Context, projectID string) ([]*models.Membership, error) {
	return s.memberships.ListByProject(ctx, projectID)
}

// AddMember grants a user a role on a project. Owner only.
func (s *Service) AddMember(ctx context.Context, projectID, actor, userID string, role models.Role) (*models.Membership, error) {
	if err := s.requireOwner(ctx, projectID, actor); err != nil {
		return nil, err
	}

	if _, err := s.memberships.GetRole(ctx, projectID, userID); err == nil {
		return nil, fmt.Errorf("%w: user %s is already a member of project %s", models.ErrValidationFailed, userID, projectID)
	}

	membership := &models.Membership{
		ID:        common.NewMembershipID(),
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now(),
	}
	if err := s.memberships.SaveMembership(ctx, membership); err != nil {
		return nil, err
	}

	s.resolver.Invalidate(projectID, userID)
	s.logger.Info().
		Str("project_id", projectID).
		Str("user_id", userID).
		Str("role", string(role)).
		Msg("Member added")
	return membership, nil
}

// RemoveMember revokes a user's membership. Owner only; the last owner
// cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, projectID, actor, userID string) error {
	if err := s.requireOwner(ctx, projectID, actor); err != nil {
		return err
	}

	members, err := s.memberships.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}

	var target *models.Membership
	owners := 0
	for _, m := range members {
		if m.Role == models.RoleOwner {
			owners++
		}
		if m.UserID == userID {
			target = m
		}
	}
	if target == nil {
		return fmt.Errorf("%w: user %s is not a member of project %s", models.ErrNotFound, userID, projectID)
	}
	if target.Role == models.RoleOwner && owners == 1 {
		return fmt.Errorf("%w: cannot remove the last owner of project %s", models.ErrValidationFailed, projectID)
	}

	if err := s.memberships.DeleteMembership(ctx, target.ID); err != nil {
		return err
	}

	s.resolver.Invalidate(projectID, userID)
	s.logger.Info().Str("project_id", projectID).Str("user_id", userID).Msg("Member removed")
	return nil
}

func (s *Service) requireOwner(ctx context.Context, projectID, actor string) error {
	role, err := s.resolver.Resolve(ctx, projectID, actor)
	if err != nil {
		return err
	}
	if role != models.RoleOwner {
		return fmt.Errorf("%w: only owners may manage members of project %s", models.ErrForbidden, projectID)
	}
	return nil
}
