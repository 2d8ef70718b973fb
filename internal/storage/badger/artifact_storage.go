package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ArtifactStorage implements the ArtifactStorage interface for Badger
type ArtifactStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArtifactStorage creates a new ArtifactStorage instance
func NewArtifactStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArtifactStorage {
	return &ArtifactStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ArtifactStorage) SaveArtifact(ctx context.Context, artifact *models.Artifact) error {
	if artifact.ID == "" {
		return fmt.Errorf("%w: artifact ID is required", models.ErrValidationFailed)
	}
	if artifact.ProjectID == "" {
		return fmt.Errorf("%w: project ID is required", models.ErrValidationFailed)
	}

	if err := s.db.Store().Upsert(artifact.ID, artifact); err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

func (s *ArtifactStorage) GetArtifact(ctx context.Context, artifactID string) (*models.Artifact, error) {
	var artifact models.Artifact
	if err := s.db.Store().Get(artifactID, &artifact); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: artifact %s", models.ErrNotFound, artifactID)
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &artifact, nil
}

func (s *ArtifactStorage) GetCurrentArtifact(ctx context.Context, projectID string, kind models.ArtifactKind) (*models.Artifact, error) {
	var artifacts []models.Artifact
	query := badgerhold.Where("ProjectID").Eq(projectID).And("Kind").Eq(kind).SortBy("Version").Reverse().Limit(1)
	if err := s.db.Store().Find(&artifacts, query); err != nil {
		return nil, fmt.Errorf("failed to get current artifact: %w", err)
	}
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("%w: no %s artifact for project %s", models.ErrNotFound, kind, projectID)
	}
	return &artifacts[0], nil
}

func (s *ArtifactStorage) GetApprovedArtifact(ctx context.Context, projectID string, kind models.ArtifactKind) (*models.Artifact, error) {
	var artifacts []models.Artifact
	query := badgerhold.Where("ProjectID").Eq(projectID).And("Kind").Eq(kind).
		And("Status").Eq(models.ArtifactApproved).SortBy("Version").Reverse().Limit(1)
	if err := s.db.Store().Find(&artifacts, query); err != nil {
		return nil, fmt.Errorf("failed to get approved artifact: %w", err)
	}
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("%w: no approved %s artifact for project %s", models.ErrNotFound, kind, projectID)
	}
	return &artifacts[0], nil
}

func (s *ArtifactStorage) ListArtifacts(ctx context.Context, projectID string) ([]*models.Artifact, error) {
	var artifacts []models.Artifact
	query := badgerhold.Where("ProjectID").Eq(projectID).SortBy("Version").Reverse()
	if err := s.db.Store().Find(&artifacts, query); err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	result := make([]*models.Artifact, len(artifacts))
	for i := range artifacts {
		result[i] = &artifacts[i]
	}
	return result, nil
}

func (s *ArtifactStorage) NextVersion(ctx context.Context, projectID string, kind models.ArtifactKind) (int, error) {
	current, err := s.GetCurrentArtifact(ctx, projectID, kind)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 1, nil
		}
		return 0, err
	}
	return current.Version + 1, nil
}

// UpdateStatusCAS applies a review decision conditionally. The update runs
// inside a single badger transaction and matches only while the status still
// equals expected; the losing concurrent reviewer affects zero rows and gets
// ErrAlreadyReviewed, never a silent overwrite.
func (s *ArtifactStorage) UpdateStatusCAS(ctx context.Context, artifactID string, expected, next models.ArtifactStatus, reviewedBy, notes string) error {
	matched := 0
	query := badgerhold.Where(badgerhold.Key).Eq(artifactID).And("Status").Eq(expected)

	err := s.db.Store().UpdateMatching(&models.Artifact{}, query, func(record interface{}) error {
		artifact, ok := record.(*models.Artifact)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		now := time.Now()
		artifact.Status = next
		artifact.ReviewedBy = reviewedBy
		artifact.ReviewedAt = &now
		if notes != "" {
			artifact.RevisionNotes = notes
		}
		matched++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update artifact status: %w", err)
	}

	if matched == 0 {
		if _, err := s.GetArtifact(ctx, artifactID); err != nil {
			return err
		}
		return fmt.Errorf("%w: artifact %s", models.ErrAlreadyReviewed, artifactID)
	}

	s.logger.Debug().
		Str("artifact_id", artifactID).
		Str("from", string(expected)).
		Str("to", string(next)).
		Str("reviewed_by", reviewedBy).
		Msg("Artifact status updated")

	return nil
}

func (s *ArtifactStorage) DeleteByProject(ctx context.Context, projectID string) error {
	if err := s.db.Store().DeleteMatching(&models.Artifact{}, badgerhold.Where("ProjectID").Eq(projectID)); err != nil {
		return fmt.Errorf("failed to delete artifacts for project %s: %w", projectID, err)
	}
	return nil
}
