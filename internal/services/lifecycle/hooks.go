package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/fabrica/internal/common"
	"github.com/ternarybob/fabrica/internal/models"
)

// The pipeline calls back into these hooks as workers claim and finish jobs.
// They are the only place job outcomes turn into project transitions, so
// status stays under this package's control.

// OnJobStarted reacts to a worker claim. Research claims move the project
// out of its queue stage; other job types start without a status change.
func (s *Service) OnJobStarted(ctx context.Context, job *models.PipelineJob) {
	if job.Type != models.JobTypeResearch {
		return
	}

	err := s.projects.UpdateStatusCAS(ctx, job.ProjectID, models.StatusResearchQueued, models.StatusResearching, nil)
	if err != nil {
		// A rerun after rejection starts with the project already in
		// researching; that is not a fault.
		if errors.Is(err, models.ErrInvalidState) {
			return
		}
		s.logger.Warn().Err(err).
			Str("project_id", job.ProjectID).
			Str("job_id", job.ID).
			Msg("Research claim transition failed")
		return
	}
	s.events.PublishProjectEvent(job.ProjectID, "research_started", models.StatusResearching)
}

// OnJobCompleted turns a successful job outcome into its project-side
// effects: generation jobs record an artifact version and advance the
// project into review, build completion opens client review.
func (s *Service) OnJobCompleted(ctx context.Context, job *models.PipelineJob, result json.RawMessage) error {
	switch job.Type {
	case models.JobTypeNarrative:
		return s.recordGeneration(ctx, job, result, models.ArtifactNarrative,
			models.StatusRequested, models.StatusNarrativeReview)
	case models.JobTypeResearch:
		return s.recordGeneration(ctx, job, result, models.ArtifactResearch,
			models.StatusResearching, models.StatusResearchReview)
	case models.JobTypeBuild:
		if err := s.projects.UpdateStatusCAS(ctx, job.ProjectID, models.StatusInProgress, models.StatusReview, nil); err != nil {
			return err
		}
		s.notifier.NotifyMembers(ctx, job.ProjectID, models.NotificationTransition,
			"Build ready for review", "The build completed and awaits client review")
		s.events.PublishProjectEvent(job.ProjectID, "build_completed", models.StatusReview)
		return nil
	default:
		// Pull, deploy, and deliverable jobs complete without a project
		// transition.
		return nil
	}
}

// recordGeneration persists a fresh artifact version from a generation
// result and moves the project into the matching review stage. A previous
// version still awaiting review is superseded so at most one version of a
// kind is ever pending.
func (s *Service) recordGeneration(ctx context.Context, job *models.PipelineJob, result json.RawMessage, kind models.ArtifactKind, from, to models.ProjectStatus) error {
	generated, err := models.DecodeGenerationResult(result)
	if err != nil {
		return err
	}
	if generated == nil || generated.Content == "" {
		return fmt.Errorf("%w: %s job %s completed without content", models.ErrValidationFailed, job.Type, job.ID)
	}

	current, err := s.artifacts.GetCurrentArtifact(ctx, job.ProjectID, kind)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if current != nil && current.IsPending() {
		casErr := s.artifacts.UpdateStatusCAS(ctx, current.ID, current.Status, models.ArtifactSuperseded, "", "")
		if casErr != nil && !errors.Is(casErr, models.ErrAlreadyReviewed) {
			return casErr
		}
	}

	version, err := s.artifacts.NextVersion(ctx, job.ProjectID, kind)
	if err != nil {
		return err
	}

	artifact := &models.Artifact{
		ID:           common.NewArtifactID(),
		ProjectID:    job.ProjectID,
		Kind:         kind,
		Version:      version,
		Status:       models.PendingStatus(kind),
		Content:      generated.Content,
		QualityScore: generated.QualityScore,
		CreatedAt:    time.Now(),
	}
	if err := s.artifacts.SaveArtifact(ctx, artifact); err != nil {
		return err
	}

	if err := s.projects.UpdateStatusCAS(ctx, job.ProjectID, from, to, nil); err != nil {
		return err
	}

	s.logger.Info().
		Str("project_id", job.ProjectID).
		Str("artifact_id", artifact.ID).
		Str("kind", string(kind)).
		Int("version", version).
		Msg("Generation recorded, review opened")

	s.notifier.NotifyMembers(ctx, job.ProjectID, models.NotificationDecision,
		fmt.Sprintf("%s ready for review", kind),
		fmt.Sprintf("Version %d awaits a decision", version))
	s.events.PublishProjectEvent(job.ProjectID, "review_opened", to)
	return nil
}

// OnJobFailed raises the failure to humans. The project status never moves
// on failure; the pipeline waits for an explicit retry or escalation.
func (s *Service) OnJobFailed(ctx context.Context, job *models.PipelineJob) {
	s.notifier.NotifyMembers(ctx, job.ProjectID, models.NotificationEscalation,
		fmt.Sprintf("%s job failed", job.Type),
		fmt.Sprintf("Job %s failed after attempt %d/%d: %s", job.ID, job.Attempts, job.MaxAttempts, job.LastError))

	s.logger.Warn().
		Str("project_id", job.ProjectID).
		Str("job_id", job.ID).
		Str("error", job.LastError).
		Msg("Job failure surfaced to members")
}
