package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/fabrica/internal/common"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
	"github.com/ternarybob/fabrica/internal/storage/badger"
)

type stubEnqueuer struct {
	mu       sync.Mutex
	enqueued []*models.PipelineJob
	orphaned []string
	// failAt makes the nth enqueue (1-based) fail, for compensation tests.
	failAt int
}

func (e *stubEnqueuer) Enqueue(ctx context.Context, projectID string, jobType models.JobType, payload json.RawMessage, opts *interfaces.EnqueueOptions) (*models.PipelineJob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failAt > 0 && len(e.enqueued)+1 == e.failAt {
		return nil, fmt.Errorf("queue unavailable")
	}

	status := models.JobStatusQueued
	if opts != nil && opts.InitialStatus != "" {
		status = opts.InitialStatus
	}
	job := &models.PipelineJob{
		ID:          fmt.Sprintf("job_%d", len(e.enqueued)+1),
		ProjectID:   projectID,
		Type:        jobType,
		Status:      status,
		Payload:     payload,
		MaxAttempts: models.DefaultMaxAttempts,
		CreatedAt:   time.Now(),
	}
	e.enqueued = append(e.enqueued, job)
	return job, nil
}

func (e *stubEnqueuer) Orphan(ctx context.Context, jobID string, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orphaned = append(e.orphaned, jobID)
	return nil
}

func (e *stubEnqueuer) OrphanProject(ctx context.Context, projectID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orphaned = append(e.orphaned, projectID)
	return 2, nil
}

func (e *stubEnqueuer) jobTypes() []models.JobType {
	e.mu.Lock()
	defer e.mu.Unlock()
	types := make([]models.JobType, len(e.enqueued))
	for i, j := range e.enqueued {
		types[i] = j.Type
	}
	return types
}

type stubNotifier struct {
	mu    sync.Mutex
	types []models.NotificationType
}

func (n *stubNotifier) Notify(ctx context.Context, userID, projectID string, nType models.NotificationType, title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, nType)
}

func (n *stubNotifier) NotifyMembers(ctx context.Context, projectID string, nType models.NotificationType, title, body string) {
	n.Notify(ctx, "", projectID, nType, title, body)
}

type stubEvents struct{}

func (stubEvents) PublishProjectEvent(projectID string, event string, payload any)    {}
func (stubEvents) PublishJobEvent(jobID, projectID string, event string, payload any) {}

type harness struct {
	svc      *Service
	enqueuer *stubEnqueuer
	notifier *stubNotifier
	storage  interfaces.StorageManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := common.GetLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	enqueuer := &stubEnqueuer{}
	notifier := &stubNotifier{}
	resolver := NewRoleResolver(manager.Memberships(), time.Minute, logger)
	blueprints, err := LoadBlueprints("")
	require.NoError(t, err)

	svc := NewService(
		manager.Projects(), manager.Artifacts(), manager.Memberships(), manager.Notifications(),
		enqueuer, resolver, notifier, stubEvents{}, blueprints, logger)

	return &harness{svc: svc, enqueuer: enqueuer, notifier: notifier, storage: manager}
}

func (h *harness) createProject(t *testing.T, dept models.Department, autonomy models.AutonomyLevel) *models.Project {
	t.Helper()
	project, err := h.svc.CreateProject(context.Background(), &CreateProjectRequest{
		Department: dept,
		Name:       "Acme Launch",
		Company:    "Acme",
		Autonomy:   autonomy,
		Actor:      "owner@acme.test",
	})
	require.NoError(t, err)
	return project
}

// generate simulates a completed generation job and returns the pending
// artifact it recorded.
func (h *harness) generate(t *testing.T, project *models.Project, kind models.ArtifactKind) *models.Artifact {
	t.Helper()
	ctx := context.Background()

	jobType := models.JobTypeNarrative
	if kind == models.ArtifactResearch {
		jobType = models.JobTypeResearch
	}
	job := &models.PipelineJob{ID: "job_gen", ProjectID: project.ID, Type: jobType}
	result := json.RawMessage(`{"content":"generated body","quality_score":0.8}`)
	require.NoError(t, h.svc.OnJobCompleted(ctx, job, result))

	artifact, err := h.storage.Artifacts().GetCurrentArtifact(ctx, project.ID, kind)
	require.NoError(t, err)
	return artifact
}

func (h *harness) projectStatus(t *testing.T, projectID string) models.ProjectStatus {
	t.Helper()
	project, err := h.storage.Projects().GetProject(context.Background(), projectID)
	require.NoError(t, err)
	return project.Status
}

func TestTransitionTableCreativeFlow(t *testing.T) {
	dept := models.DepartmentCreative

	legal := []Transition{
		{models.StatusRequested, models.StatusNarrativeReview},
		{models.StatusNarrativeReview, models.StatusBrandCollection},
		{models.StatusNarrativeReview, models.StatusRequested},
		{models.StatusBrandCollection, models.StatusInProgress},
		{models.StatusInProgress, models.StatusReview},
		{models.StatusReview, models.StatusLive},
		{models.StatusReview, models.StatusRevision},
		{models.StatusRevision, models.StatusInProgress},
	}
	for _, tr := range legal {
		assert.True(t, CanTransition(dept, tr.From, tr.To), "%s -> %s should be legal", tr.From, tr.To)
	}

	illegal := []Transition{
		{models.StatusRequested, models.StatusLive},
		{models.StatusLive, models.StatusReview},
		{models.StatusLive, models.StatusRequested},
		{models.StatusBrandCollection, models.StatusReview},
		{models.StatusRequested, models.StatusRequested},
	}
	for _, tr := range illegal {
		assert.False(t, CanTransition(dept, tr.From, tr.To), "%s -> %s should be illegal", tr.From, tr.To)
	}
}

func TestTransitionTableHoldEdges(t *testing.T) {
	for _, dept := range []models.Department{models.DepartmentCreative, models.DepartmentStrategy, models.DepartmentIntelligence} {
		for _, status := range models.StatusesFor(dept) {
			if status == models.StatusOnHold {
				continue
			}
			assert.True(t, CanTransition(dept, status, models.StatusOnHold), "%s: %s -> on_hold", dept, status)
			assert.True(t, CanTransition(dept, models.StatusOnHold, status), "%s: on_hold -> %s", dept, status)
		}
	}
	// A status from another department never enters through a hold edge.
	assert.False(t, CanTransition(models.DepartmentStrategy, models.StatusOnHold, models.StatusLive))
}

func TestCreateProjectSeedsPipeline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	project := h.createProject(t, models.DepartmentCreative, models.AutonomySupervised)
	assert.Equal(t, models.StatusRequested, project.Status)
	assert.Equal(t, []models.JobType{models.JobTypePull, models.JobTypeNarrative}, h.enqueuer.jobTypes())

	role, err := h.storage.Memberships().GetRole(ctx, project.ID, "owner@acme.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, role)

	strategy := h.createProject(t, models.DepartmentStrategy, models.AutonomyFullAuto)
	assert.Equal(t, models.StatusResearchQueued, strategy.Status)
}

func TestCreateProjectCompensatesEnqueueFailure(t *testing.T) {
	h := newHarness(t)
	h.enqueuer.failAt = 2 // pull lands, narrative fails

	_, err := h.svc.CreateProject(context.Background(), &CreateProjectRequest{
		Department: models.DepartmentCreative,
		Name:       "Doomed",
		Actor:      "owner@acme.test",
	})
	require.Error(t, err)

	// The landed job was orphaned and no project row survives.
	assert.Equal(t, []string{"job_1"}, h.enqueuer.orphaned)
	projects, err := h.storage.Projects().ListProjects(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestNarrativeApprovalAdvancesProject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	project := h.createProject(t, models.DepartmentCreative, models.AutonomySupervised)
	artifact := h.generate(t, project, models.ArtifactNarrative)
	assert.Equal(t, models.ArtifactPendingReview, artifact.Status)
	assert.Equal(t, models.StatusNarrativeReview, h.projectStatus(t, project.ID))

	decided, err := h.svc.SubmitDecision(ctx, artifact.ID, DecisionApprove, "owner@acme.test", "")
	require.NoError(t, err)
	assert.Equal(t, models.ArtifactApproved, decided.Status)
	assert.Equal(t, "owner@acme.test", decided.ReviewedBy)
	assert.Equal(t, models.StatusBrandCollection, h.projectStatus(t, project.ID))

	// The version left pending exactly once.
	_, err = h.svc.SubmitDecision(ctx, artifact.ID, DecisionApprove, "owner@acme.test", "")
	assert.ErrorIs(t, err, models.ErrAlreadyReviewed)
}

func TestNarrativeRejectionRequeuesGeneration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	project := h.createProject(t, models.DepartmentCreative, models.AutonomySupervised)
	artifact := h.generate(t, project, models.ArtifactNarrative)
	jobsBefore := len(h.enqueuer.enqueued)

	// Rejection without notes is refused.
	_, err := h.svc.SubmitDecision(ctx, artifact.ID, DecisionReject, "owner@acme.test", "  ")
	assert.ErrorIs(t, err, models.ErrValidationFailed)

	decided, err := h.svc.SubmitDecision(ctx, artifact.ID, DecisionReject, "owner@acme.test", "wrong tone")
	require.NoError(t, err)
	assert.Equal(t, models.ArtifactRejected, decided.Status)
	assert.Equal(t, "wrong tone", decided.RevisionNotes)
	assert.Equal(t, models.StatusRequested, h.projectStatus(t, project.ID))

	require.Len(t, h.enqueuer.enqueued, jobsBefore+1)
	requeued := h.enqueuer.enqueued[jobsBefore]
	assert.Equal(t, models.JobTypeNarrative, requeued.Type)

	payload, err := models.DecodeGenerationPayload(requeued.Payload)
	require.NoError(t, err)
	assert.Equal(t, "wrong tone", payload.RevisionNotes)
	assert.Equal(t, artifact.Version, payload.PreviousVersion)

	// The regenerated version supersedes nothing pending and opens review again.
	next := h.generate(t, project, models.ArtifactNarrative)
	assert.Equal(t, artifact.Version+1, next.Version)
	assert.Equal(t, models.StatusNarrativeReview, h.projectStatus(t, project.ID))
}

func TestResearchReviewRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	project := h.createProject(t, models.DepartmentStrategy, models.AutonomyFullAuto)

	// Worker claims the research job.
	h.svc.OnJobStarted(ctx, &models.PipelineJob{ID: "job_r", ProjectID: project.ID, Type: models.JobTypeResearch})
	assert.Equal(t, models.StatusResearching, h.projectStatus(t, project.ID))

	artifact := h.generate(t, project, models.ArtifactResearch)
	assert.Equal(t, models.ArtifactDraft, artifact.Status)
	assert.Equal(t, models.StatusResearchReview, h.projectStatus(t, project.ID))

	_, err := h.svc.SubmitDecision(ctx, artifact.ID, DecisionReject, "owner@acme.test", "thin sources")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResearching, h.projectStatus(t, project.ID))

	// A repeat claim while already researching is harmless.
	h.svc.OnJobStarted(ctx, &models.PipelineJob{ID: "job_r2", ProjectID: project.ID, Type: models.JobTypeResearch})

	next := h.generate(t, project, models.ArtifactResearch)
	_, err = h.svc.SubmitDecision(ctx, next.ID, DecisionApprove, "owner@acme.test", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResearchComplete, h.projectStatus(t, project.ID))
}

func TestViewerCannotDecide(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	project := h.createProject(t, models.DepartmentCreative, models.AutonomySupervised)
	artifact := h.generate(t, project, models.ArtifactNarrative)

	_, err := h.svc.AddMember(ctx, project.ID, "owner@acme.test", "viewer@acme.test", models.RoleViewer)
	require.NoError(t, err)

	_, err = h.svc.SubmitDecision(ctx, artifact.ID, DecisionApprove, "viewer@acme.test", "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = h.svc.SubmitDecision(ctx, artifact.ID, DecisionApprove, "stranger@other.test", "")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestStartBuildEnqueuesDeliverables(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	project := h.createProject(t, models.DepartmentCreative, models.AutonomySupervised)
	artifact := h.generate(t, project, models.ArtifactNarrative)
	_, err := h.svc.SubmitDecision(ctx, artifact.ID, DecisionApprove, "owner@acme.test", "")
	require.NoError(t, err)

	jobsBefore := len(h.enqueuer.enqueued)
	require.NoError(t, h.svc.StartBuild(ctx, project.ID, "owner@acme.test", false))
	assert.Equal(t, models.StatusInProgress, h.projectStatus(t, project.ID))

	added := h.enqueuer.enqueued[jobsBefore:]
	require.Len(t, added, 4) // build + review, one_pager, emails
	assert.Equal(t, models.JobTypeBuild, added[0].Type)
	assert.Equal(t, models.JobStatusQueued, added[0].Status)
	for _, deliverable := range added[1:] {
		// Supervised projects gate deliverables behind a human release.
		assert.Equal(t, models.JobStatusPending, deliverable.Status)
	}

	// Build may only start from brand collection.
	err = h.svc.StartBuild(ctx, project.ID, "owner@acme.test", false)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestStartBuildCompensatesEnqueueFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	project := h.createProject(t, models.DepartmentCreative, models.AutonomyFullAuto)
	artifact := h.generate(t, project, models.ArtifactNarrative)
	_, err := h.svc.SubmitDecision(ctx, artifact.ID, DecisionApprove, "owner@acme.test", "")
	require.NoError(t, err)

	// Build lands, first deliverable fails.
	h.enqueuer.failAt = len(h.enqueuer.enqueued) + 2

	err = h.svc.StartBuild(ctx, project.ID, "owner@acme.test", false)
	require.Error(t, err)
	assert.Equal(t, models.StatusBrandCollection, h.projectStatus(t, project.ID))
	assert.NotEmpty(t, h.enqueuer.orphaned)
}

func TestApprovalFlowToLiveAndRevision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	project := h.createProject(t, models.DepartmentCreative, models.AutonomyFullAuto)
	artifact := h.generate(t, project, models.ArtifactNarrative)
	_, err := h.svc.SubmitDecision(ctx, artifact.ID, DecisionApprove, "owner@acme.test", "")
	require.NoError(t, err)
	require.NoError(t, h.svc.StartBuild(ctx, project.ID, "owner@acme.test", false))

	// Build completes, client review opens.
	require.NoError(t, h.svc.OnJobCompleted(ctx, &models.PipelineJob{ID: "job_b", ProjectID: project.ID, Type: models.JobTypeBuild}, nil))
	assert.Equal(t, models.StatusReview, h.projectStatus(t, project.ID))

	require.NoError(t, h.svc.ApplyApproval(ctx, project.ID, ApprovalRequestChanges, "owner@acme.test", "new hero image"))
	assert.Equal(t, models.StatusRevision, h.projectStatus(t, project.ID))

	jobsBefore := len(h.enqueuer.enqueued)
	require.NoError(t, h.svc.ResumeRevision(ctx, project.ID, "owner@acme.test"))
	assert.Equal(t, models.StatusInProgress, h.projectStatus(t, project.ID))
	require.Len(t, h.enqueuer.enqueued, jobsBefore+1)
	assert.Equal(t, models.JobTypeBuild, h.enqueuer.enqueued[jobsBefore].Type)

	require.NoError(t, h.svc.OnJobCompleted(ctx, &models.PipelineJob{ID: "job_b2", ProjectID: project.ID, Type: models.JobTypeBuild}, nil))

	jobsBefore = len(h.enqueuer.enqueued)
	require.NoError(t, h.svc.ApplyApproval(ctx, project.ID, ApprovalApprove, "owner@acme.test", ""))
	assert.Equal(t, models.StatusLive, h.projectStatus(t, project.ID))
	require.Len(t, h.enqueuer.enqueued, jobsBefore+1)
	assert.Equal(t, models.JobTypeDeploy, h.enqueuer.enqueued[jobsBefore].Type)
}

func TestHoldResumeRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	project := h.createProject(t, models.DepartmentCreative, models.AutonomySupervised)
	h.generate(t, project, models.ArtifactNarrative)

	require.NoError(t, h.svc.Hold(ctx, project.ID, "owner@acme.test"))
	held, err := h.storage.Projects().GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnHold, held.Status)
	// The restore point lands with the hold itself; an on_hold project with
	// no held status would be unresumable.
	assert.Equal(t, models.StatusNarrativeReview, held.HeldStatus)

	// Double hold is a state conflict.
	err = h.svc.Hold(ctx, project.ID, "owner@acme.test")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	require.NoError(t, h.svc.Resume(ctx, project.ID, "owner@acme.test"))
	resumed, err := h.storage.Projects().GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNarrativeReview, resumed.Status)
	assert.Empty(t, resumed.HeldStatus)

	// Resuming a project not on hold is a state conflict.
	err = h.svc.Resume(ctx, project.ID, "owner@acme.test")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestDeleteProjectCascades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	project := h.createProject(t, models.DepartmentCreative, models.AutonomySupervised)
	h.generate(t, project, models.ArtifactNarrative)

	_, err := h.svc.AddMember(ctx, project.ID, "owner@acme.test", "editor@acme.test", models.RoleEditor)
	require.NoError(t, err)

	// Editors cannot delete.
	err = h.svc.DeleteProject(ctx, project.ID, "editor@acme.test")
	assert.ErrorIs(t, err, models.ErrForbidden)

	require.NoError(t, h.svc.DeleteProject(ctx, project.ID, "owner@acme.test"))

	_, err = h.storage.Projects().GetProject(ctx, project.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	artifacts, err := h.storage.Artifacts().ListArtifacts(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, artifacts)

	members, err := h.storage.Memberships().ListByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	// Non-terminal jobs were orphaned, not erased.
	assert.Contains(t, h.enqueuer.orphaned, project.ID)
}

func TestRemoveMemberGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	project := h.createProject(t, models.DepartmentCreative, models.AutonomySupervised)

	// The last owner cannot be removed.
	err := h.svc.RemoveMember(ctx, project.ID, "owner@acme.test", "owner@acme.test")
	assert.ErrorIs(t, err, models.ErrValidationFailed)

	_, err = h.svc.AddMember(ctx, project.ID, "owner@acme.test", "editor@acme.test", models.RoleEditor)
	require.NoError(t, err)
	require.NoError(t, h.svc.RemoveMember(ctx, project.ID, "owner@acme.test", "editor@acme.test"))

	err = h.svc.RemoveMember(ctx, project.ID, "owner@acme.test", "editor@acme.test")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGenerationWithoutContentIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	project := h.createProject(t, models.DepartmentCreative, models.AutonomySupervised)
	job := &models.PipelineJob{ID: "job_g", ProjectID: project.ID, Type: models.JobTypeNarrative}

	err := h.svc.OnJobCompleted(ctx, job, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, models.ErrValidationFailed)
	assert.Equal(t, models.StatusRequested, h.projectStatus(t, project.ID))
}
