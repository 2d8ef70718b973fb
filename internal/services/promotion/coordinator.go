package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/common"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
)

// Coordinator executes promotions. It is deliberately not transactional at
// the storage layer: each step is an independent write, and any failure
// after the target project exists triggers compensating deletes in reverse
// step order so no partially-wired project is ever visible.
type Coordinator struct {
	projects    interfaces.ProjectStorage
	artifacts   interfaces.ArtifactStorage
	memberships interfaces.MembershipStorage
	references  interfaces.ReferenceStorage
	trends      interfaces.TrendStorage
	enqueuer    interfaces.PipelineEnqueuer
	notifier    interfaces.Notifier
	events      interfaces.EventPublisher
	config      *common.Config
	logger      arbor.ILogger
}

// NewCoordinator creates a new promotion coordinator
func NewCoordinator(
	projects interfaces.ProjectStorage,
	artifacts interfaces.ArtifactStorage,
	memberships interfaces.MembershipStorage,
	references interfaces.ReferenceStorage,
	trends interfaces.TrendStorage,
	enqueuer interfaces.PipelineEnqueuer,
	notifier interfaces.Notifier,
	events interfaces.EventPublisher,
	config *common.Config,
	logger arbor.ILogger,
) *Coordinator {
	return &Coordinator{
		projects:    projects,
		artifacts:   artifacts,
		memberships: memberships,
		references:  references,
		trends:      trends,
		enqueuer:    enqueuer,
		notifier:    notifier,
		events:      events,
		config:      config,
		logger:      logger,
	}
}

// Overrides optionally replace derived fields on the promoted project.
type Overrides struct {
	Name     string
	Company  string
	Autonomy models.AutonomyLevel
	Notes    string
}

// PromoteRequest names a promotion source and target.
type PromoteRequest struct {
	SourceType       models.SourceType
	SourceID         string
	TargetDepartment models.Department
	Actor            string
	Overrides        *Overrides
}

// promotionLegal is the promotion path table. Work only flows downstream:
// intelligence feeds strategy, strategy feeds creative. Creative output is
// never a source, and trend clusters only seed strategy.
func promotionLegal(sourceType models.SourceType, sourceDept, targetDept models.Department) bool {
	switch sourceType {
	case models.SourceTypeTrend:
		return targetDept == models.DepartmentStrategy
	case models.SourceTypeProject:
		switch sourceDept {
		case models.DepartmentIntelligence:
			return targetDept == models.DepartmentStrategy
		case models.DepartmentStrategy:
			return targetDept == models.DepartmentCreative
		}
	}
	return false
}

// Promote creates a project in the target department seeded with upstream
// context, or fails atomically from the caller's point of view.
func (c *Coordinator) Promote(ctx context.Context, req *PromoteRequest) (*models.Project, error) {
	if req.Actor == "" {
		return nil, fmt.Errorf("%w: actor is required", models.ErrValidationFailed)
	}

	// Steps 1-2: load the source and derive the untruncated upstream context.
	source, err := c.loadSource(ctx, req)
	if err != nil {
		return nil, err
	}

	// Step 3: create the target project in its entry status.
	target, err := c.createTarget(ctx, req, source)
	if err != nil {
		return nil, err
	}

	// Every write past this point registers an undo; on failure the undos
	// run newest first so the dependency order unwinds cleanly.
	var undos []func()
	rollback := func() {
		for i := len(undos) - 1; i >= 0; i-- {
			undos[i]()
		}
		if delErr := c.projects.DeleteProject(ctx, target.ID); delErr != nil {
			// No background reconciliation exists for this; the orphan id is
			// the only trace.
			c.logger.Error().Err(delErr).
				Str("orphan_project_id", target.ID).
				Msg("Compensating project delete failed, orphan row remains")
		}
	}

	// Step 4: membership. Project sources copy their members with owners
	// downgraded to editor; the acting user always owns the new project.
	memberIDs, err := c.copyMembership(ctx, req, source, target)
	if err != nil {
		rollback()
		return nil, err
	}
	undos = append(undos, func() {
		for _, id := range memberIDs {
			if delErr := c.memberships.DeleteMembership(ctx, id); delErr != nil {
				c.logger.Error().Err(delErr).Str("membership_id", id).Msg("Compensating membership delete failed")
			}
		}
	})

	// Step 5: provenance edge carrying the untruncated context.
	refID, err := c.recordReference(ctx, req, source, target)
	if err != nil {
		rollback()
		return nil, err
	}
	undos = append(undos, func() {
		if delErr := c.references.DeleteReference(ctx, refID); delErr != nil {
			c.logger.Error().Err(delErr).Str("reference_id", refID).Msg("Compensating reference delete failed")
		}
	})

	// Step 6: budgeted copy on the project row for cheap pipeline reads.
	truncated, cut := Truncate(source.context, c.config.Promotion.ContextTokenBudget)
	target.SourceContext = truncated
	target.UpdatedAt = time.Now()
	if err := c.projects.UpdateProject(ctx, target); err != nil {
		rollback()
		return nil, err
	}

	// Step 7: seed the target department's pipeline.
	jobIDs, err := c.enqueueTargetJobs(ctx, target)
	if err != nil {
		for _, jobID := range jobIDs {
			if orphanErr := c.enqueuer.Orphan(ctx, jobID, "promotion rolled back"); orphanErr != nil {
				c.logger.Error().Err(orphanErr).Str("job_id", jobID).Msg("Compensating job orphan failed")
			}
		}
		rollback()
		return nil, err
	}

	c.logger.Info().
		Str("source_type", string(req.SourceType)).
		Str("source_id", req.SourceID).
		Str("target_id", target.ID).
		Str("target_department", string(req.TargetDepartment)).
		Bool("context_truncated", cut).
		Int("context_tokens", EstimateTokens(truncated)).
		Str("actor", req.Actor).
		Msg("Promotion completed")

	c.notifier.NotifyMembers(ctx, target.ID, models.NotificationPromotion,
		"Project promoted",
		fmt.Sprintf("%s promoted %s into %s", req.Actor, req.SourceID, req.TargetDepartment))
	c.events.PublishProjectEvent(target.ID, "promoted", target.Status)

	return target, nil
}

// promotionSource is the resolved source plus its untruncated context.
type promotionSource struct {
	project      *models.Project // nil for trend sources
	name         string
	company      string
	context      string
	qualityScore float64
}

func (c *Coordinator) loadSource(ctx context.Context, req *PromoteRequest) (*promotionSource, error) {
	switch req.SourceType {
	case models.SourceTypeProject:
		project, err := c.projects.GetProject(ctx, req.SourceID)
		if err != nil {
			return nil, err
		}
		if !promotionLegal(req.SourceType, project.Department, req.TargetDepartment) {
			return nil, fmt.Errorf("%w: cannot promote %s project %s to %s",
				models.ErrValidationFailed, project.Department, project.ID, req.TargetDepartment)
		}
		src := &promotionSource{project: project, name: project.Name, company: project.Company}
		src.context, src.qualityScore = c.upstreamContext(ctx, project)
		return src, nil

	case models.SourceTypeTrend:
		trend, err := c.trends.GetTrend(ctx, req.SourceID)
		if err != nil {
			return nil, err
		}
		if !promotionLegal(req.SourceType, trend.Department, req.TargetDepartment) {
			return nil, fmt.Errorf("%w: cannot promote trend %s to %s",
				models.ErrValidationFailed, trend.ID, req.TargetDepartment)
		}
		return &promotionSource{
			name:    trend.Name,
			context: trendSummary(trend, c.config.Promotion.TrendSignalLimit),
		}, nil
	}

	return nil, fmt.Errorf("%w: unknown source type %q", models.ErrValidationFailed, req.SourceType)
}

// upstreamContext builds forwarded context from a source project: the
// latest approved research artifact when one exists, otherwise the
// project's own notes and inherited context. Rejected and superseded
// versions never flow downstream.
func (c *Coordinator) upstreamContext(ctx context.Context, project *models.Project) (string, float64) {
	research, err := c.artifacts.GetApprovedArtifact(ctx, project.ID, models.ArtifactResearch)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			c.logger.Warn().Err(err).Str("project_id", project.ID).Msg("Upstream research lookup failed, falling back to notes")
		}
		fallback := project.Notes
		if project.SourceContext != "" {
			if fallback != "" {
				fallback += "\n\n"
			}
			fallback += project.SourceContext
		}
		return fallback, 0
	}
	return research.Content, research.QualityScore
}

func (c *Coordinator) createTarget(ctx context.Context, req *PromoteRequest, source *promotionSource) (*models.Project, error) {
	initial, err := models.InitialStatus(req.TargetDepartment)
	if err != nil {
		return nil, err
	}

	name := source.name
	company := source.company
	autonomy := models.AutonomySupervised
	notes := ""
	if req.Overrides != nil {
		if req.Overrides.Name != "" {
			name = req.Overrides.Name
		}
		if req.Overrides.Company != "" {
			company = req.Overrides.Company
		}
		if req.Overrides.Autonomy != "" {
			autonomy = req.Overrides.Autonomy
		}
		notes = req.Overrides.Notes
	}

	now := time.Now()
	target := &models.Project{
		ID:         common.NewProjectID(),
		Department: req.TargetDepartment,
		Status:     initial,
		Name:       name,
		Company:    company,
		Autonomy:   autonomy,
		Notes:      notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.projects.SaveProject(ctx, target); err != nil {
		return nil, err
	}
	return target, nil
}

func (c *Coordinator) copyMembership(ctx context.Context, req *PromoteRequest, source *promotionSource, target *models.Project) ([]string, error) {
	var created []string
	now := time.Now()

	add := func(userID string, role models.Role) error {
		m := &models.Membership{
			ID:        common.NewMembershipID(),
			ProjectID: target.ID,
			UserID:    userID,
			Role:      role,
			CreatedAt: now,
		}
		if err := c.memberships.SaveMembership(ctx, m); err != nil {
			return err
		}
		created = append(created, m.ID)
		return nil
	}

	if err := add(req.Actor, models.RoleOwner); err != nil {
		return created, err
	}

	if source.project != nil {
		members, err := c.memberships.ListByProject(ctx, source.project.ID)
		if err != nil {
			return created, err
		}
		for _, m := range members {
			if m.UserID == req.Actor {
				continue
			}
			role := m.Role
			if role == models.RoleOwner {
				role = models.RoleEditor
			}
			if err := add(m.UserID, role); err != nil {
				return created, err
			}
		}
	}

	return created, nil
}

func (c *Coordinator) recordReference(ctx context.Context, req *PromoteRequest, source *promotionSource, target *models.Project) (string, error) {
	metadata, err := models.MarshalPayload(&models.PromotionMetadata{
		ForwardedContext: source.context,
		ContextTokens:    EstimateTokens(source.context),
		QualityScore:     source.qualityScore,
		Actor:            req.Actor,
	})
	if err != nil {
		return "", err
	}

	sourceDept := models.DepartmentIntelligence
	if source.project != nil {
		sourceDept = source.project.Department
	}

	ref := &models.CrossDeptReference{
		ID:               common.NewReferenceID(),
		SourceDepartment: sourceDept,
		SourceType:       req.SourceType,
		SourceID:         req.SourceID,
		TargetDepartment: target.Department,
		TargetType:       models.SourceTypeProject,
		TargetID:         target.ID,
		Relationship:     models.RelationshipPromotedTo,
		Metadata:         metadata,
		Actor:            req.Actor,
		CreatedAt:        time.Now(),
	}
	if err := c.references.SaveReference(ctx, ref); err != nil {
		return "", err
	}
	return ref.ID, nil
}

// enqueueTargetJobs seeds the promoted project's pipeline with its
// department's entry jobs, carrying the budgeted context in the payload.
func (c *Coordinator) enqueueTargetJobs(ctx context.Context, target *models.Project) ([]string, error) {
	var created []string

	enqueue := func(jobType models.JobType) error {
		payload, _ := models.MarshalPayload(&models.GenerationPayload{SourceContext: target.SourceContext})
		job, err := c.enqueuer.Enqueue(ctx, target.ID, jobType, payload, nil)
		if err != nil {
			return err
		}
		created = append(created, job.ID)
		return nil
	}

	var err error
	switch target.Department {
	case models.DepartmentStrategy:
		err = enqueue(models.JobTypeResearch)
	case models.DepartmentCreative:
		if err = enqueue(models.JobTypePull); err == nil {
			err = enqueue(models.JobTypeNarrative)
		}
	}
	if err != nil {
		return created, fmt.Errorf("failed to seed promoted pipeline: %w", err)
	}
	return created, nil
}

// ListProvenance returns the reference edges that point at a project.
func (c *Coordinator) ListProvenance(ctx context.Context, projectID string) ([]*models.CrossDeptReference, error) {
	return c.references.ListByTarget(ctx, projectID)
}

// ListPromotions returns the reference edges that originate at a source.
func (c *Coordinator) ListPromotions(ctx context.Context, sourceID string) ([]*models.CrossDeptReference, error) {
	return c.references.ListBySource(ctx, sourceID)
}
