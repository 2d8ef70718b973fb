package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ReferenceStorage implements the ReferenceStorage interface for Badger.
// Reference rows are append-only provenance; the only delete path is the
// promotion coordinator's compensating rollback.
type ReferenceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReferenceStorage creates a new ReferenceStorage instance
func NewReferenceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReferenceStorage {
	return &ReferenceStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ReferenceStorage) SaveReference(ctx context.Context, ref *models.CrossDeptReference) error {
	if ref.ID == "" {
		return fmt.Errorf("%w: reference ID is required", models.ErrValidationFailed)
	}
	if ref.SourceID == "" || ref.TargetID == "" {
		return fmt.Errorf("%w: reference endpoints are required", models.ErrValidationFailed)
	}

	if err := s.db.Store().Insert(ref.ID, ref); err != nil {
		return fmt.Errorf("failed to save reference: %w", err)
	}
	return nil
}

func (s *ReferenceStorage) GetReference(ctx context.Context, refID string) (*models.CrossDeptReference, error) {
	var ref models.CrossDeptReference
	if err := s.db.Store().Get(refID, &ref); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: reference %s", models.ErrNotFound, refID)
		}
		return nil, fmt.Errorf("failed to get reference: %w", err)
	}
	return &ref, nil
}

func (s *ReferenceStorage) ListBySource(ctx context.Context, sourceID string) ([]*models.CrossDeptReference, error) {
	return s.list(badgerhold.Where("SourceID").Eq(sourceID))
}

func (s *ReferenceStorage) ListByTarget(ctx context.Context, targetID string) ([]*models.CrossDeptReference, error) {
	return s.list(badgerhold.Where("TargetID").Eq(targetID))
}

func (s *ReferenceStorage) list(query *badgerhold.Query) ([]*models.CrossDeptReference, error) {
	var refs []models.CrossDeptReference
	if err := s.db.Store().Find(&refs, query.SortBy("CreatedAt").Reverse()); err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}

	result := make([]*models.CrossDeptReference, len(refs))
	for i := range refs {
		result[i] = &refs[i]
	}
	return result, nil
}

func (s *ReferenceStorage) DeleteReference(ctx context.Context, refID string) error {
	if err := s.db.Store().Delete(refID, &models.CrossDeptReference{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete reference: %w", err)
	}
	return nil
}
