package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// MembershipStorage implements the MembershipStorage interface for Badger
type MembershipStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMembershipStorage creates a new MembershipStorage instance
func NewMembershipStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MembershipStorage {
	return &MembershipStorage{
		db:     db,
		logger: logger,
	}
}

func (s *MembershipStorage) SaveMembership(ctx context.Context, m *models.Membership) error {
	if m.ID == "" {
		return fmt.Errorf("%w: membership ID is required", models.ErrValidationFailed)
	}
	if m.ProjectID == "" || m.UserID == "" {
		return fmt.Errorf("%w: project and user are required", models.ErrValidationFailed)
	}

	if err := s.db.Store().Upsert(m.ID, m); err != nil {
		return fmt.Errorf("failed to save membership: %w", err)
	}
	return nil
}

func (s *MembershipStorage) GetRole(ctx context.Context, projectID, userID string) (models.Role, error) {
	var memberships []models.Membership
	query := badgerhold.Where("ProjectID").Eq(projectID).And("UserID").Eq(userID).Limit(1)
	if err := s.db.Store().Find(&memberships, query); err != nil {
		return "", fmt.Errorf("failed to get role: %w", err)
	}
	if len(memberships) == 0 {
		return "", fmt.Errorf("%w: no membership for user %s on project %s", models.ErrNotFound, userID, projectID)
	}
	return memberships[0].Role, nil
}

func (s *MembershipStorage) ListByProject(ctx context.Context, projectID string) ([]*models.Membership, error) {
	var memberships []models.Membership
	if err := s.db.Store().Find(&memberships, badgerhold.Where("ProjectID").Eq(projectID)); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	result := make([]*models.Membership, len(memberships))
	for i := range memberships {
		result[i] = &memberships[i]
	}
	return result, nil
}

func (s *MembershipStorage) DeleteMembership(ctx context.Context, membershipID string) error {
	if err := s.db.Store().Delete(membershipID, &models.Membership{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return nil
}

func (s *MembershipStorage) DeleteByProject(ctx context.Context, projectID string) error {
	if err := s.db.Store().DeleteMatching(&models.Membership{}, badgerhold.Where("ProjectID").Eq(projectID)); err != nil {
		return fmt.Errorf("failed to delete memberships for project %s: %w", projectID, err)
	}
	return nil
}
