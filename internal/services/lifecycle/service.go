// Package lifecycle implements the project lifecycle state machine: legal
// statuses per department, guarded transitions, and the side effects each
// transition triggers. It is the only writer of Project.status.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/common"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
)

// DecisionAction is a reviewer's verdict on an artifact version.
type DecisionAction string

const (
	DecisionApprove  DecisionAction = "approve"
	DecisionReject   DecisionAction = "reject"
	DecisionEscalate DecisionAction = "escalate"
)

// ApprovalAction is a client's verdict on a built deliverable.
type ApprovalAction string

const (
	ApprovalApprove        ApprovalAction = "approve"
	ApprovalRequestChanges ApprovalAction = "request_changes"
	ApprovalEscalate       ApprovalAction = "escalate"
)

// Service applies guarded lifecycle transitions. Every operation checks the
// actor's membership role, performs the primary conditional write, then
// fires best-effort notifications and events. A job enqueue immediately
// after a status change is part of the primary operation: if it fails the
// status change is compensated and the whole call fails.
type Service struct {
	projects      interfaces.ProjectStorage
	artifacts     interfaces.ArtifactStorage
	memberships   interfaces.MembershipStorage
	notifications interfaces.NotificationStorage
	enqueuer      interfaces.PipelineEnqueuer
	resolver      *RoleResolver
	notifier      interfaces.Notifier
	events        interfaces.EventPublisher
	blueprints    *Blueprints
	logger        arbor.ILogger
}

// NewService creates a new lifecycle service
func NewService(
	projects interfaces.ProjectStorage,
	artifacts interfaces.ArtifactStorage,
	memberships interfaces.MembershipStorage,
	notifications interfaces.NotificationStorage,
	enqueuer interfaces.PipelineEnqueuer,
	resolver *RoleResolver,
	notifier interfaces.Notifier,
	events interfaces.EventPublisher,
	blueprints *Blueprints,
	logger arbor.ILogger,
) *Service {
	return &Service{
		projects:      projects,
		artifacts:     artifacts,
		memberships:   memberships,
		notifications: notifications,
		enqueuer:      enqueuer,
		resolver:      resolver,
		notifier:      notifier,
		events:        events,
		blueprints:    blueprints,
		logger:        logger,
	}
}

// CreateProjectRequest carries a client submission.
type CreateProjectRequest struct {
	Department models.Department
	Name       string
	Company    string
	Autonomy   models.AutonomyLevel
	Notes      string
	Actor      string
}

// CreateProject registers a submission in its department's entry status,
// makes the actor the owner, and enqueues the department's initial pipeline
// jobs. An enqueue failure rolls the whole submission back.
func (s *Service) CreateProject(ctx context.Context, req *CreateProjectRequest) (*models.Project, error) {
	if req.Name == "" || req.Actor == "" {
		return nil, fmt.Errorf("%w: name and actor are required", models.ErrValidationFailed)
	}

	initial, err := models.InitialStatus(req.Department)
	if err != nil {
		return nil, err
	}

	autonomy := req.Autonomy
	if autonomy == "" {
		autonomy = models.AutonomySupervised
	}

	now := time.Now()
	project := &models.Project{
		ID:         common.NewProjectID(),
		Department: req.Department,
		Status:     initial,
		Name:       req.Name,
		Company:    req.Company,
		Autonomy:   autonomy,
		Notes:      req.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.projects.SaveProject(ctx, project); err != nil {
		return nil, err
	}

	membership := &models.Membership{
		ID:        common.NewMembershipID(),
		ProjectID: project.ID,
		UserID:    req.Actor,
		Role:      models.RoleOwner,
		CreatedAt: now,
	}
	if err := s.memberships.SaveMembership(ctx, membership); err != nil {
		s.compensateDelete(ctx, project.ID, nil)
		return nil, err
	}

	if err := s.enqueueInitialJobs(ctx, project); err != nil {
		s.compensateDelete(ctx, project.ID, []string{membership.ID})
		return nil, err
	}

	s.logger.Info().
		Str("project_id", project.ID).
		Str("department", string(project.Department)).
		Str("status", string(project.Status)).
		Msg("Project created")

	s.events.PublishProjectEvent(project.ID, "created", project.Status)

	return project, nil
}

// enqueueInitialJobs seeds the pipeline for a fresh submission.
func (s *Service) enqueueInitialJobs(ctx context.Context, project *models.Project) error {
	var created []string

	enqueue := func(jobType models.JobType, payload json.RawMessage) error {
		job, err := s.enqueuer.Enqueue(ctx, project.ID, jobType, payload, nil)
		if err != nil {
			return err
		}
		created = append(created, job.ID)
		return nil
	}

	var err error
	switch project.Department {
	case models.DepartmentCreative:
		payload, _ := models.MarshalPayload(&models.GenerationPayload{SourceContext: project.SourceContext})
		if err = enqueue(models.JobTypePull, nil); err == nil {
			err = enqueue(models.JobTypeNarrative, payload)
		}
	case models.DepartmentStrategy:
		payload, _ := models.MarshalPayload(&models.GenerationPayload{SourceContext: project.SourceContext})
		err = enqueue(models.JobTypeResearch, payload)
	case models.DepartmentIntelligence:
		// Intelligence projects track trends; no generation jobs at entry.
	}

	if err != nil {
		for _, jobID := range created {
			if orphanErr := s.enqueuer.Orphan(ctx, jobID, "submission rolled back"); orphanErr != nil {
				s.logger.Error().Err(orphanErr).Str("job_id", jobID).Msg("Failed to orphan job during rollback")
			}
		}
		return fmt.Errorf("failed to enqueue initial jobs: %w", err)
	}
	return nil
}

func (s *Service) compensateDelete(ctx context.Context, projectID string, membershipIDs []string) {
	for _, id := range membershipIDs {
		if err := s.memberships.DeleteMembership(ctx, id); err != nil {
			s.logger.Error().Err(err).Str("membership_id", id).Msg("Compensating membership delete failed")
		}
	}
	if err := s.projects.DeleteProject(ctx, projectID); err != nil {
		s.logger.Error().Err(err).Str("project_id", projectID).Msg("Compensating project delete failed, orphan row remains")
	}
}

// SubmitDecision applies a reviewer's verdict to an artifact version. The
// artifact update is a compare-and-swap: exactly one of two concurrent
// reviewers succeeds, the other gets ErrAlreadyReviewed.
func (s *Service) SubmitDecision(ctx context.Context, artifactID string, action DecisionAction, actor, notes string) (*models.Artifact, error) {
	artifact, err := s.artifacts.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	project, err := s.projects.GetProject(ctx, artifact.ProjectID)
	if err != nil {
		return nil, err
	}

	if err := s.requireReviewer(ctx, project.ID, actor); err != nil {
		return nil, err
	}

	stage, ok := reviewStages[artifact.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: artifact kind %q has no review stage", models.ErrValidationFailed, artifact.Kind)
	}
	if project.Status != stage.ExpectedStatus {
		return nil, fmt.Errorf("%w: project %s is in status %q, expected %q",
			models.ErrInvalidState, project.ID, project.Status, stage.ExpectedStatus)
	}

	pending := models.PendingStatus(artifact.Kind)
	if artifact.Status != pending {
		return nil, fmt.Errorf("%w: artifact %s", models.ErrAlreadyReviewed, artifactID)
	}

	switch action {
	case DecisionApprove:
		return s.approveArtifact(ctx, project, artifact, stage, pending, actor)
	case DecisionReject:
		return s.rejectArtifact(ctx, project, artifact, stage, pending, actor, notes)
	case DecisionEscalate:
		// No state change; purely a human-attention signal.
		s.notifier.NotifyMembers(ctx, project.ID, models.NotificationEscalation,
			fmt.Sprintf("%s review escalated", artifact.Kind),
			fmt.Sprintf("%s escalated version %d: %s", actor, artifact.Version, notes))
		return artifact, nil
	default:
		return nil, fmt.Errorf("%w: unknown decision action %q", models.ErrValidationFailed, action)
	}
}

func (s *Service) approveArtifact(ctx context.Context, project *models.Project, artifact *models.Artifact, stage reviewStage, pending models.ArtifactStatus, actor string) (*models.Artifact, error) {
	if err := s.artifacts.UpdateStatusCAS(ctx, artifact.ID, pending, models.ArtifactApproved, actor, ""); err != nil {
		return nil, err
	}

	// The artifact CAS serializes concurrent approvals; only the winner
	// reaches this project transition.
	if err := s.projects.UpdateStatusCAS(ctx, project.ID, stage.ExpectedStatus, stage.OnApprove, nil); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("project_id", project.ID).
		Str("artifact_id", artifact.ID).
		Int("version", artifact.Version).
		Str("actor", actor).
		Msg("Artifact approved")

	s.notifier.NotifyMembers(ctx, project.ID, models.NotificationDecision,
		fmt.Sprintf("%s approved", artifact.Kind),
		fmt.Sprintf("Version %d approved by %s", artifact.Version, actor))
	s.events.PublishProjectEvent(project.ID, "artifact_approved", stage.OnApprove)

	return s.artifacts.GetArtifact(ctx, artifact.ID)
}

func (s *Service) rejectArtifact(ctx context.Context, project *models.Project, artifact *models.Artifact, stage reviewStage, pending models.ArtifactStatus, actor, notes string) (*models.Artifact, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, fmt.Errorf("%w: rejection requires revision notes", models.ErrValidationFailed)
	}

	if err := s.artifacts.UpdateStatusCAS(ctx, artifact.ID, pending, models.ArtifactRejected, actor, notes); err != nil {
		return nil, err
	}

	if err := s.projects.UpdateStatusCAS(ctx, project.ID, stage.ExpectedStatus, stage.OnReject, nil); err != nil {
		return nil, err
	}

	// The rejection re-launches generation with the reviewer's notes. The
	// status change and this enqueue are one unit: on enqueue failure the
	// status is compensated back and the operation fails.
	payload, _ := models.MarshalPayload(&models.GenerationPayload{
		RevisionNotes:   notes,
		PreviousVersion: artifact.Version,
		SourceContext:   project.SourceContext,
	})
	if _, err := s.enqueuer.Enqueue(ctx, project.ID, stage.RetryJob, payload, nil); err != nil {
		if revertErr := s.projects.UpdateStatusCAS(ctx, project.ID, stage.OnReject, stage.ExpectedStatus, nil); revertErr != nil {
			s.logger.Error().Err(revertErr).Str("project_id", project.ID).Msg("Compensating status revert failed")
		}
		return nil, fmt.Errorf("failed to enqueue %s regeneration: %w", stage.RetryJob, err)
	}

	s.logger.Info().
		Str("project_id", project.ID).
		Str("artifact_id", artifact.ID).
		Int("version", artifact.Version).
		Str("actor", actor).
		Msg("Artifact rejected, regeneration queued")

	s.notifier.NotifyMembers(ctx, project.ID, models.NotificationDecision,
		fmt.Sprintf("%s rejected", artifact.Kind),
		fmt.Sprintf("Version %d rejected by %s: %s", artifact.Version, actor, notes))
	s.events.PublishProjectEvent(project.ID, "artifact_rejected", stage.OnReject)

	return s.artifacts.GetArtifact(ctx, artifact.ID)
}

// StartBuild moves a creative project from brand collection into the build
// stage and enqueues the build plus the autonomy level's deliverables.
func (s *Service) StartBuild(ctx context.Context, projectID, actor string, skipAssets bool) error {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.requireReviewer(ctx, projectID, actor); err != nil {
		return err
	}

	if err := s.projects.UpdateStatusCAS(ctx, projectID, models.StatusBrandCollection, models.StatusInProgress, nil); err != nil {
		return err
	}

	var created []string
	enqueueAll := func() error {
		buildPayload, _ := models.MarshalPayload(&models.BuildPayload{SkipAssets: skipAssets})
		job, err := s.enqueuer.Enqueue(ctx, projectID, models.JobTypeBuild, buildPayload, nil)
		if err != nil {
			return err
		}
		created = append(created, job.ID)

		deliverables, initialStatus := s.blueprints.DeliverablesFor(project.Autonomy)
		for _, jobType := range deliverables {
			job, err := s.enqueuer.Enqueue(ctx, projectID, jobType, nil, &interfaces.EnqueueOptions{InitialStatus: initialStatus})
			if err != nil {
				return err
			}
			created = append(created, job.ID)
		}
		return nil
	}

	if err := enqueueAll(); err != nil {
		for _, jobID := range created {
			if orphanErr := s.enqueuer.Orphan(ctx, jobID, "build start rolled back"); orphanErr != nil {
				s.logger.Error().Err(orphanErr).Str("job_id", jobID).Msg("Failed to orphan job during rollback")
			}
		}
		if revertErr := s.projects.UpdateStatusCAS(ctx, projectID, models.StatusInProgress, models.StatusBrandCollection, nil); revertErr != nil {
			s.logger.Error().Err(revertErr).Str("project_id", projectID).Msg("Compensating status revert failed")
		}
		return fmt.Errorf("failed to enqueue build jobs: %w", err)
	}

	s.logger.Info().
		Str("project_id", projectID).
		Str("actor", actor).
		Bool("skip_assets", skipAssets).
		Int("jobs_enqueued", len(created)).
		Msg("Build started")

	s.notifier.NotifyMembers(ctx, projectID, models.NotificationTransition,
		"Build started", fmt.Sprintf("Build launched by %s", actor))
	s.events.PublishProjectEvent(projectID, "build_started", models.StatusInProgress)

	return nil
}

// ApplyApproval applies the client's verdict on a built deliverable.
func (s *Service) ApplyApproval(ctx context.Context, projectID string, action ApprovalAction, actor, notes string) error {
	if _, err := s.projects.GetProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.requireReviewer(ctx, projectID, actor); err != nil {
		return err
	}

	switch action {
	case ApprovalApprove:
		if err := s.projects.UpdateStatusCAS(ctx, projectID, models.StatusReview, models.StatusLive, nil); err != nil {
			return err
		}
		// Going live launches the deploy job; same one-unit rule as other
		// transition-plus-enqueue pairs.
		if _, err := s.enqueuer.Enqueue(ctx, projectID, models.JobTypeDeploy, nil, nil); err != nil {
			if revertErr := s.projects.UpdateStatusCAS(ctx, projectID, models.StatusLive, models.StatusReview, nil); revertErr != nil {
				s.logger.Error().Err(revertErr).Str("project_id", projectID).Msg("Compensating status revert failed")
			}
			return fmt.Errorf("failed to enqueue deploy: %w", err)
		}
		s.notifier.NotifyMembers(ctx, projectID, models.NotificationTransition,
			"Project approved", fmt.Sprintf("Approved by %s, deploy queued", actor))
		s.events.PublishProjectEvent(projectID, "approved", models.StatusLive)

	case ApprovalRequestChanges:
		if err := s.projects.UpdateStatusCAS(ctx, projectID, models.StatusReview, models.StatusRevision, nil); err != nil {
			return err
		}
		s.notifier.NotifyMembers(ctx, projectID, models.NotificationTransition,
			"Changes requested", fmt.Sprintf("%s requested changes: %s", actor, notes))
		s.events.PublishProjectEvent(projectID, "changes_requested", models.StatusRevision)

	case ApprovalEscalate:
		s.notifier.NotifyMembers(ctx, projectID, models.NotificationEscalation,
			"Review escalated", fmt.Sprintf("%s escalated the review: %s", actor, notes))

	default:
		return fmt.Errorf("%w: unknown approval action %q", models.ErrValidationFailed, action)
	}

	s.logger.Info().
		Str("project_id", projectID).
		Str("action", string(action)).
		Str("actor", actor).
		Msg("Approval applied")

	return nil
}

// ResumeRevision relaunches the build after changes were requested.
func (s *Service) ResumeRevision(ctx context.Context, projectID, actor string) error {
	if err := s.requireReviewer(ctx, projectID, actor); err != nil {
		return err
	}

	if err := s.projects.UpdateStatusCAS(ctx, projectID, models.StatusRevision, models.StatusInProgress, nil); err != nil {
		return err
	}

	payload, _ := models.MarshalPayload(&models.BuildPayload{Revision: true})
	if _, err := s.enqueuer.Enqueue(ctx, projectID, models.JobTypeBuild, payload, nil); err != nil {
		if revertErr := s.projects.UpdateStatusCAS(ctx, projectID, models.StatusInProgress, models.StatusRevision, nil); revertErr != nil {
			s.logger.Error().Err(revertErr).Str("project_id", projectID).Msg("Compensating status revert failed")
		}
		return fmt.Errorf("failed to enqueue revision build: %w", err)
	}

	s.logger.Info().Str("project_id", projectID).Str("actor", actor).Msg("Revision build started")
	s.events.PublishProjectEvent(projectID, "revision_build_started", models.StatusInProgress)
	return nil
}

// Hold parks a project. The prior status is kept so Resume can restore it.
func (s *Service) Hold(ctx context.Context, projectID, actor string) error {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.requireReviewer(ctx, projectID, actor); err != nil {
		return err
	}
	if project.IsOnHold() {
		return fmt.Errorf("%w: project %s is already on hold", models.ErrInvalidState, projectID)
	}

	// HeldStatus moves with the status in one conditional write; a hold can
	// never land without its restore point.
	previous := project.Status
	if err := s.projects.UpdateStatusCAS(ctx, projectID, previous, models.StatusOnHold, func(p *models.Project) {
		p.HeldStatus = previous
	}); err != nil {
		return err
	}

	s.logger.Info().Str("project_id", projectID).Str("held_status", string(previous)).Msg("Project placed on hold")
	s.events.PublishProjectEvent(projectID, "held", models.StatusOnHold)
	return nil
}

// Resume restores a held project to the status it was holding.
func (s *Service) Resume(ctx context.Context, projectID, actor string) error {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.requireReviewer(ctx, projectID, actor); err != nil {
		return err
	}
	if !project.IsOnHold() || project.HeldStatus == "" {
		return fmt.Errorf("%w: project %s is not on hold", models.ErrInvalidState, projectID)
	}

	restored := project.HeldStatus
	if err := s.projects.UpdateStatusCAS(ctx, projectID, models.StatusOnHold, restored, func(p *models.Project) {
		p.HeldStatus = ""
	}); err != nil {
		return err
	}

	s.logger.Info().Str("project_id", projectID).Str("status", string(restored)).Msg("Project resumed")
	s.events.PublishProjectEvent(projectID, "resumed", restored)
	return nil
}

// DeleteProject hard-deletes a project and cascades to its sub-resources.
// Owner role required. Jobs are not physically removed: non-terminal rows
// move to the orphaned terminal state so an in-flight worker's completion
// report lands on a recognizable row instead of a missing one.
func (s *Service) DeleteProject(ctx context.Context, projectID, actor string) error {
	if _, err := s.projects.GetProject(ctx, projectID); err != nil {
		return err
	}

	role, err := s.resolver.Resolve(ctx, projectID, actor)
	if err != nil {
		return err
	}
	if role != models.RoleOwner {
		return fmt.Errorf("%w: only owners may delete project %s", models.ErrForbidden, projectID)
	}

	orphaned, err := s.enqueuer.OrphanProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to orphan project jobs: %w", err)
	}

	if err := s.artifacts.DeleteByProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.notifications.DeleteByProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.memberships.DeleteByProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.projects.DeleteProject(ctx, projectID); err != nil {
		return err
	}

	s.logger.Info().
		Str("project_id", projectID).
		Str("actor", actor).
		Int("jobs_orphaned", orphaned).
		Msg("Project deleted")

	s.events.PublishProjectEvent(projectID, "deleted", nil)
	return nil
}

// requireReviewer guards a transition on the actor holding a role that may
// apply decisions.
func (s *Service) requireReviewer(ctx context.Context, projectID, actor string) error {
	role, err := s.resolver.Resolve(ctx, projectID, actor)
	if err != nil {
		return err
	}
	if !role.CanReview() {
		return fmt.Errorf("%w: role %q may not apply transitions on project %s", models.ErrForbidden, role, projectID)
	}
	return nil
}
