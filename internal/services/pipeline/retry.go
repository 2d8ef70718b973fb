package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/fabrica/internal/common"
	"github.com/ternarybob/fabrica/internal/models"
)

// Retry relaunches a failed job as a fresh row. The original stays failed as
// the audit trail; the new row carries the same type and payload, a reset
// attempt counter, and a link back to what it replaces.
func (s *Service) Retry(ctx context.Context, jobID, actor string) (*models.PipelineJob, error) {
	original, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if original.Status != models.JobStatusFailed {
		return nil, fmt.Errorf("%w: job %s is %q, only failed jobs can be retried",
			models.ErrInvalidState, jobID, original.Status)
	}

	retry := &models.PipelineJob{
		ID:          common.NewJobID(),
		ProjectID:   original.ProjectID,
		Type:        original.Type,
		Status:      models.JobStatusQueued,
		Payload:     original.Payload,
		MaxAttempts: original.MaxAttempts,
		CreatedAt:   time.Now(),
		RetryOf:     original.ID,
	}

	if err := s.jobs.SaveJob(ctx, retry); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", retry.ID).
		Str("retry_of", original.ID).
		Str("project_id", original.ProjectID).
		Str("type", string(original.Type)).
		Str("actor", actor).
		Msg("Failed job retried")

	s.notifier.NotifyMembers(ctx, original.ProjectID, models.NotificationRetry,
		fmt.Sprintf("%s job retried", original.Type),
		fmt.Sprintf("%s requeued job %s as %s", actor, original.ID, retry.ID))
	s.events.PublishJobEvent(retry.ID, retry.ProjectID, "retried", models.JobStatusQueued)

	return retry, nil
}

// Escalate raises a failed job to human attention without changing any
// state. Members get a notification carrying the failure detail.
func (s *Service) Escalate(ctx context.Context, jobID, actor, note string) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusFailed {
		return fmt.Errorf("%w: job %s is %q, only failed jobs can be escalated",
			models.ErrInvalidState, jobID, job.Status)
	}

	message := fmt.Sprintf("%s escalated job %s (%s): %s", actor, job.ID, job.LastError, note)
	s.notifier.NotifyMembers(ctx, job.ProjectID, models.NotificationEscalation,
		fmt.Sprintf("%s job escalated", job.Type), message)

	s.logger.Warn().
		Str("job_id", jobID).
		Str("project_id", job.ProjectID).
		Str("actor", actor).
		Msg("Failed job escalated")

	return nil
}
