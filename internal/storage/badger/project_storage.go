package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ProjectStorage implements the ProjectStorage interface for Badger
type ProjectStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProjectStorage creates a new ProjectStorage instance
func NewProjectStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProjectStorage {
	return &ProjectStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ProjectStorage) SaveProject(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		return fmt.Errorf("%w: project ID is required", models.ErrValidationFailed)
	}
	if !models.HasStatus(project.Department, project.Status) {
		return fmt.Errorf("%w: status %q is not legal for department %q",
			models.ErrValidationFailed, project.Status, project.Department)
	}

	if err := s.db.Store().Upsert(project.ID, project); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *ProjectStorage) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	var project models.Project
	if err := s.db.Store().Get(projectID, &project); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: project %s", models.ErrNotFound, projectID)
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

func (s *ProjectStorage) ListProjects(ctx context.Context, opts *interfaces.ProjectListOptions) ([]*models.Project, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Department != "" {
			query = query.And("Department").Eq(models.Department(opts.Department))
		}
		if opts.Status != "" {
			query = query.And("Status").Eq(models.ProjectStatus(opts.Status))
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var projects []models.Project
	if err := s.db.Store().Find(&projects, query); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	result := make([]*models.Project, len(projects))
	for i := range projects {
		result[i] = &projects[i]
	}
	return result, nil
}

// UpdateStatusCAS applies a conditional status transition. The update runs
// inside a single badger transaction and only touches rows whose status
// still equals expected, so exactly one of two racing callers succeeds.
// A non-nil mutate runs on the matched row in the same transaction, for
// bookkeeping fields that must move with the status.
func (s *ProjectStorage) UpdateStatusCAS(ctx context.Context, projectID string, expected, next models.ProjectStatus, mutate func(*models.Project)) error {
	matched := 0
	query := badgerhold.Where(badgerhold.Key).Eq(projectID).And("Status").Eq(expected)

	err := s.db.Store().UpdateMatching(&models.Project{}, query, func(record interface{}) error {
		project, ok := record.(*models.Project)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		project.Status = next
		project.UpdatedAt = time.Now()
		if mutate != nil {
			mutate(project)
		}
		matched++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}

	if matched == 0 {
		// Distinguish a missing project from a stale expectation.
		if _, err := s.GetProject(ctx, projectID); err != nil {
			return err
		}
		return fmt.Errorf("%w: project %s is not in status %q", models.ErrInvalidState, projectID, expected)
	}

	s.logger.Debug().
		Str("project_id", projectID).
		Str("from", string(expected)).
		Str("to", string(next)).
		Msg("Project status updated")

	return nil
}

func (s *ProjectStorage) UpdateProject(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now()
	return s.SaveProject(ctx, project)
}

func (s *ProjectStorage) DeleteProject(ctx context.Context, projectID string) error {
	if err := s.db.Store().Delete(projectID, &models.Project{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}
