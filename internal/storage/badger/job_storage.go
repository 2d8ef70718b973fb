package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.PipelineJob) error {
	if err := job.Validate(); err != nil {
		return err
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.PipelineJob, error) {
	var job models.PipelineJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.PipelineJob, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.ProjectID != "" {
			query = query.And("ProjectID").Eq(opts.ProjectID)
		}
		if opts.Status != "" {
			query = query.And("Status").Eq(models.JobStatus(opts.Status))
		}
		if opts.Type != "" {
			query = query.And("Type").Eq(models.JobType(opts.Type))
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.PipelineJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.PipelineJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) ListByProject(ctx context.Context, projectID string) ([]*models.PipelineJob, error) {
	return s.ListJobs(ctx, &interfaces.JobListOptions{ProjectID: projectID})
}

// ClaimNext atomically claims the oldest queued job matching the capability
// set. The conditional update matches only while the row is still queued, so
// two racing workers cannot claim the same job; the loser retries against
// the next candidate.
func (s *JobStorage) ClaimNext(ctx context.Context, capabilities []models.JobType) (*models.PipelineJob, error) {
	const maxRaces = 3

	for attempt := 0; attempt < maxRaces; attempt++ {
		query := badgerhold.Where("Status").Eq(models.JobStatusQueued)
		if len(capabilities) > 0 {
			caps := make([]interface{}, len(capabilities))
			for i, c := range capabilities {
				caps[i] = c
			}
			query = query.And("Type").In(caps...)
		}
		query = query.SortBy("CreatedAt").Limit(1)

		var candidates []models.PipelineJob
		if err := s.db.Store().Find(&candidates, query); err != nil {
			return nil, fmt.Errorf("failed to find claimable job: %w", err)
		}
		if len(candidates) == 0 {
			return nil, nil
		}

		candidate := candidates[0]
		claimed := 0
		casQuery := badgerhold.Where(badgerhold.Key).Eq(candidate.ID).And("Status").Eq(models.JobStatusQueued)
		err := s.db.Store().UpdateMatching(&models.PipelineJob{}, casQuery, func(record interface{}) error {
			job, ok := record.(*models.PipelineJob)
			if !ok {
				return fmt.Errorf("unexpected record type %T", record)
			}
			job.MarkStarted()
			claimed++
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}

		if claimed == 1 {
			return s.GetJob(ctx, candidate.ID)
		}
		// Lost the race to another worker; look for the next candidate.
	}

	return nil, nil
}

func (s *JobStorage) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	count, err := s.db.Store().Count(&models.PipelineJob{}, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

func (s *JobStorage) CountActiveBefore(ctx context.Context, job *models.PipelineJob) (int, error) {
	query := badgerhold.Where("Status").In(models.JobStatusQueued, models.JobStatusRunning).
		And("CreatedAt").Lt(job.CreatedAt)
	count, err := s.db.Store().Count(&models.PipelineJob{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return int(count), nil
}

// RecentCompletions returns the last limit completed jobs ordered by
// completion time, newest first. Sorted here because CompletedAt is a
// pointer field badgerhold cannot sort on.
func (s *JobStorage) RecentCompletions(ctx context.Context, limit int) ([]*models.PipelineJob, error) {
	var jobs []models.PipelineJob
	query := badgerhold.Where("Status").Eq(models.JobStatusCompleted)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list recent completions: %w", err)
	}

	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i].CompletedAt, jobs[j].CompletedAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}

	result := make([]*models.PipelineJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) StaleRunning(ctx context.Context, thresholdSeconds int) ([]*models.PipelineJob, error) {
	threshold := time.Now().Add(-time.Duration(thresholdSeconds) * time.Second)
	var jobs []models.PipelineJob
	query := badgerhold.Where("Status").Eq(models.JobStatusRunning).And("LastHeartbeat").Lt(threshold)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to find stale jobs: %w", err)
	}

	result := make([]*models.PipelineJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// UpdateJobCAS conditionally mutates a job while its status is still one of
// expected. Zero matches mean either the row vanished or the status moved on;
// the follow-up read distinguishes the two.
func (s *JobStorage) UpdateJobCAS(ctx context.Context, jobID string, expected []models.JobStatus, mutate func(*models.PipelineJob)) error {
	states := make([]interface{}, len(expected))
	for i, st := range expected {
		states[i] = st
	}

	matched := 0
	query := badgerhold.Where(badgerhold.Key).Eq(jobID).And("Status").In(states...)
	err := s.db.Store().UpdateMatching(&models.PipelineJob{}, query, func(record interface{}) error {
		job, ok := record.(*models.PipelineJob)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		mutate(job)
		matched++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}

	if matched == 0 {
		current, getErr := s.GetJob(ctx, jobID)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: job %s is in status %q", models.ErrInvalidState, jobID, current.Status)
	}
	return nil
}

func (s *JobStorage) OrphanByProject(ctx context.Context, projectID string) (int, error) {
	orphaned := 0
	query := badgerhold.Where("ProjectID").Eq(projectID).
		And("Status").In(models.JobStatusPending, models.JobStatusQueued, models.JobStatusRunning)

	err := s.db.Store().UpdateMatching(&models.PipelineJob{}, query, func(record interface{}) error {
		job, ok := record.(*models.PipelineJob)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		now := time.Now()
		job.Status = models.JobStatusOrphaned
		job.CompletedAt = &now
		job.LastError = "Orphaned: project deleted"
		orphaned++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to orphan jobs for project %s: %w", projectID, err)
	}
	return orphaned, nil
}
