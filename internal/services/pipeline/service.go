// Package pipeline owns the durable job queue: enqueue, the worker claim and
// report protocol, retries, escalation, the queue-position estimator, and the
// lease sweeper that reclaims jobs from crashed workers.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/common"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
)

// Service implements the job queue. It fulfils interfaces.PipelineEnqueuer
// for the lifecycle state machine and exposes the worker-facing claim and
// report operations. Lifecycle hooks are injected after construction because
// the two services reference each other.
type Service struct {
	jobs     interfaces.JobStorage
	hooks    interfaces.LifecycleHooks
	notifier interfaces.Notifier
	events   interfaces.EventPublisher
	config   *common.Config
	logger   arbor.ILogger
}

// NewService creates a new pipeline service
func NewService(jobs interfaces.JobStorage, notifier interfaces.Notifier, events interfaces.EventPublisher, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		jobs:     jobs,
		notifier: notifier,
		events:   events,
		config:   config,
		logger:   logger,
	}
}

// SetHooks injects the lifecycle callbacks. Must be called before workers
// start claiming.
func (s *Service) SetHooks(hooks interfaces.LifecycleHooks) {
	s.hooks = hooks
}

// Enqueue inserts a new job row. Jobs start queued unless the options name a
// different initial status (pending for human-gated deliverables).
func (s *Service) Enqueue(ctx context.Context, projectID string, jobType models.JobType, payload json.RawMessage, opts *interfaces.EnqueueOptions) (*models.PipelineJob, error) {
	status := models.JobStatusQueued
	maxAttempts := s.config.Pipeline.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	if opts != nil {
		if opts.InitialStatus != "" {
			status = opts.InitialStatus
		}
		if opts.MaxAttempts > 0 {
			maxAttempts = opts.MaxAttempts
		}
	}
	if status != models.JobStatusQueued && status != models.JobStatusPending {
		return nil, fmt.Errorf("%w: initial job status must be queued or pending, got %q", models.ErrValidationFailed, status)
	}

	job := &models.PipelineJob{
		ID:          common.NewJobID(),
		ProjectID:   projectID,
		Type:        jobType,
		Status:      status,
		Payload:     payload,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("project_id", projectID).
		Str("type", string(jobType)).
		Str("status", string(status)).
		Msg("Job enqueued")

	s.events.PublishJobEvent(job.ID, projectID, "enqueued", status)
	return job, nil
}

// Get returns a job by ID.
func (s *Service) Get(ctx context.Context, jobID string) (*models.PipelineJob, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// List returns jobs matching the options, newest first.
func (s *Service) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.PipelineJob, error) {
	return s.jobs.ListJobs(ctx, opts)
}

// ListByProject returns a project's jobs, newest first.
func (s *Service) ListByProject(ctx context.Context, projectID string) ([]*models.PipelineJob, error) {
	return s.jobs.ListByProject(ctx, projectID)
}

// Release opens a human release gate: pending -> queued. Only pending jobs
// are releasable.
func (s *Service) Release(ctx context.Context, jobID string) (*models.PipelineJob, error) {
	err := s.jobs.UpdateJobCAS(ctx, jobID, []models.JobStatus{models.JobStatusPending}, func(job *models.PipelineJob) {
		job.Status = models.JobStatusQueued
	})
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("job_id", jobID).Str("type", string(job.Type)).Msg("Job released to queue")
	s.events.PublishJobEvent(job.ID, job.ProjectID, "released", models.JobStatusQueued)
	return job, nil
}

// Claim hands the oldest claimable job matching the worker's capability set
// to the worker, or nil when the queue is empty. The claim itself is a
// conditional write in storage; this layer adds the lifecycle notification.
func (s *Service) Claim(ctx context.Context, capabilities []models.JobType) (*models.PipelineJob, error) {
	job, err := s.jobs.ClaimNext(ctx, capabilities)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("project_id", job.ProjectID).
		Str("type", string(job.Type)).
		Int("attempt", job.Attempts).
		Msg("Job claimed")

	if s.hooks != nil {
		s.hooks.OnJobStarted(ctx, job)
	}
	s.events.PublishJobEvent(job.ID, job.ProjectID, "started", models.JobStatusRunning)
	return job, nil
}

// ReportProgress records a worker progress snapshot and refreshes the
// heartbeat lease. Only running jobs accept progress.
func (s *Service) ReportProgress(ctx context.Context, jobID string, progress *models.JobProgress) error {
	err := s.jobs.UpdateJobCAS(ctx, jobID, []models.JobStatus{models.JobStatusRunning}, func(job *models.PipelineJob) {
		now := time.Now()
		job.LastHeartbeat = &now
		if progress != nil {
			job.Progress = progress
		}
	})
	if err != nil {
		return err
	}

	s.logger.Debug().Str("job_id", jobID).Msg("Job progress reported")
	return nil
}

// Complete records a successful outcome and forwards the result to the
// lifecycle hooks. Completing an orphaned job is a silent no-op: the project
// was deleted while the worker ran, and the report has nowhere to land.
func (s *Service) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	current, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if current.Status == models.JobStatusOrphaned {
		s.logger.Warn().Str("job_id", jobID).Msg("Completion reported for orphaned job, discarding")
		return nil
	}

	err = s.jobs.UpdateJobCAS(ctx, jobID, []models.JobStatus{models.JobStatusRunning}, func(job *models.PipelineJob) {
		job.MarkCompleted()
	})
	if err != nil {
		return err
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("project_id", job.ProjectID).
		Str("type", string(job.Type)).
		Msg("Job completed")

	if s.hooks != nil {
		if err := s.hooks.OnJobCompleted(ctx, job, result); err != nil {
			// The job itself finished; the downstream transition failure is
			// surfaced to the worker so the report can be retried.
			return fmt.Errorf("job %s completed but post-completion handling failed: %w", jobID, err)
		}
	}

	s.events.PublishJobEvent(job.ID, job.ProjectID, "completed", models.JobStatusCompleted)
	return nil
}

// Fail records a failed outcome. The row becomes immutable; a retry inserts
// a fresh row. An orphaned job swallows the report like Complete does.
func (s *Service) Fail(ctx context.Context, jobID string, errorMsg string) error {
	current, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if current.Status == models.JobStatusOrphaned {
		s.logger.Warn().Str("job_id", jobID).Msg("Failure reported for orphaned job, discarding")
		return nil
	}

	err = s.jobs.UpdateJobCAS(ctx, jobID, []models.JobStatus{models.JobStatusRunning}, func(job *models.PipelineJob) {
		job.MarkFailed(errorMsg)
	})
	if err != nil {
		return err
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	s.logger.Warn().
		Str("job_id", jobID).
		Str("project_id", job.ProjectID).
		Str("type", string(job.Type)).
		Str("error", errorMsg).
		Msg("Job failed")

	if s.hooks != nil {
		s.hooks.OnJobFailed(ctx, job)
	}
	s.events.PublishJobEvent(job.ID, job.ProjectID, "failed", models.JobStatusFailed)
	return nil
}

// Orphan moves a single non-terminal job to the orphaned terminal state.
func (s *Service) Orphan(ctx context.Context, jobID string, reason string) error {
	nonTerminal := []models.JobStatus{models.JobStatusPending, models.JobStatusQueued, models.JobStatusRunning}
	err := s.jobs.UpdateJobCAS(ctx, jobID, nonTerminal, func(job *models.PipelineJob) {
		now := time.Now()
		job.Status = models.JobStatusOrphaned
		job.CompletedAt = &now
		job.LastError = "Orphaned: " + reason
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("job_id", jobID).Str("reason", reason).Msg("Job orphaned")
	return nil
}

// OrphanProject orphans every non-terminal job of a project and returns the
// count. Called from project deletion and promotion rollback.
func (s *Service) OrphanProject(ctx context.Context, projectID string) (int, error) {
	count, err := s.jobs.OrphanByProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info().Str("project_id", projectID).Int("count", count).Msg("Project jobs orphaned")
	}
	return count, nil
}
