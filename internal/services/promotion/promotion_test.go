package promotion

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
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
	failAt   int
}

func (e *stubEnqueuer) Enqueue(ctx context.Context, projectID string, jobType models.JobType, payload json.RawMessage, opts *interfaces.EnqueueOptions) (*models.PipelineJob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAt > 0 && len(e.enqueued)+1 == e.failAt {
		return nil, fmt.Errorf("queue unavailable")
	}
	job := &models.PipelineJob{
		ID:        fmt.Sprintf("job_%d", len(e.enqueued)+1),
		ProjectID: projectID,
		Type:      jobType,
		Status:    models.JobStatusQueued,
		Payload:   payload,
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
	return 0, nil
}

type stubNotifier struct{}

func (stubNotifier) Notify(ctx context.Context, userID, projectID string, nType models.NotificationType, title, body string) {
}
func (stubNotifier) NotifyMembers(ctx context.Context, projectID string, nType models.NotificationType, title, body string) {
}

type stubEvents struct{}

func (stubEvents) PublishProjectEvent(projectID string, event string, payload any)    {}
func (stubEvents) PublishJobEvent(jobID, projectID string, event string, payload any) {}

// failingRefs injects a reference-insert failure for rollback tests.
type failingRefs struct {
	interfaces.ReferenceStorage
	fail bool
}

func (f *failingRefs) SaveReference(ctx context.Context, ref *models.CrossDeptReference) error {
	if f.fail {
		return fmt.Errorf("%w: reference store unavailable", models.ErrUpstreamFailure)
	}
	return f.ReferenceStorage.SaveReference(ctx, ref)
}

type harness struct {
	coord    *Coordinator
	storage  interfaces.StorageManager
	enqueuer *stubEnqueuer
	refs     *failingRefs
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := common.GetLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	enqueuer := &stubEnqueuer{}
	refs := &failingRefs{ReferenceStorage: manager.References()}

	coord := NewCoordinator(
		manager.Projects(), manager.Artifacts(), manager.Memberships(), refs, manager.Trends(),
		enqueuer, stubNotifier{}, stubEvents{}, common.DefaultConfig(), logger)

	return &harness{coord: coord, storage: manager, enqueuer: enqueuer, refs: refs}
}

// seedStrategySource creates a research-complete strategy project with an
// approved research artifact and an owner membership.
func (h *harness) seedStrategySource(t *testing.T, content string) *models.Project {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	project := &models.Project{
		ID:         common.NewProjectID(),
		Department: models.DepartmentStrategy,
		Status:     models.StatusResearchComplete,
		Name:       "Market Entry",
		Company:    "Acme",
		Autonomy:   models.AutonomySupervised,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, h.storage.Projects().SaveProject(ctx, project))

	artifact := &models.Artifact{
		ID:           common.NewArtifactID(),
		ProjectID:    project.ID,
		Kind:         models.ArtifactResearch,
		Version:      1,
		Status:       models.ArtifactApproved,
		Content:      content,
		QualityScore: 0.9,
		CreatedAt:    now,
	}
	require.NoError(t, h.storage.Artifacts().SaveArtifact(ctx, artifact))

	require.NoError(t, h.storage.Memberships().SaveMembership(ctx, &models.Membership{
		ID:        common.NewMembershipID(),
		ProjectID: project.ID,
		UserID:    "strategist@acme.test",
		Role:      models.RoleOwner,
		CreatedAt: now,
	}))
	return project
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}

func TestTruncateUnderBudgetIsUntouched(t *testing.T) {
	out, cut := Truncate("short context", 100)
	assert.False(t, cut)
	assert.Equal(t, "short context", out)
}

func TestTruncateCutsToBudgetWithMarker(t *testing.T) {
	text := strings.Repeat("abcd", 100) // 100 tokens
	out, cut := Truncate(text, 10)

	assert.True(t, cut)
	assert.True(t, strings.HasSuffix(out, TruncationMarker))
	assert.LessOrEqual(t, EstimateTokens(out), 10)

	prefix := strings.TrimSuffix(out, TruncationMarker)
	assert.True(t, strings.HasPrefix(text, prefix))
}

func TestTruncateRespectsRuneBoundaries(t *testing.T) {
	text := strings.Repeat("日本語のテキスト", 50)
	out, cut := Truncate(text, 20)

	require.True(t, cut)
	prefix := strings.TrimSuffix(out, TruncationMarker)
	assert.True(t, strings.HasPrefix(text, prefix))
	for _, r := range prefix {
		assert.NotEqual(t, '�', r)
	}
}

func TestTrendSummaryRanksSignalsByConfidence(t *testing.T) {
	trend := &models.TrendCluster{
		Name:    "Short-form video",
		Summary: "Rapid adoption across cohorts.",
		Signals: []models.TrendSignal{
			{Name: "weak", Lifecycle: "declining", Velocity: 0.1, Confidence: 0.2},
			{Name: "strong", Lifecycle: "peaking", Velocity: 0.9, Confidence: 0.95},
			{Name: "middle", Lifecycle: "emerging", Velocity: 0.5, Confidence: 0.6},
		},
	}

	summary := trendSummary(trend, 2)
	assert.Contains(t, summary, "strong")
	assert.Contains(t, summary, "middle")
	assert.NotContains(t, summary, "weak")
	assert.Less(t, strings.Index(summary, "strong"), strings.Index(summary, "middle"))
}

func TestPromotionLegality(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	source := h.seedStrategySource(t, "research body")

	// Strategy feeds creative only.
	_, err := h.coord.Promote(ctx, &PromoteRequest{
		SourceType:       models.SourceTypeProject,
		SourceID:         source.ID,
		TargetDepartment: models.DepartmentStrategy,
		Actor:            "lead@acme.test",
	})
	assert.ErrorIs(t, err, models.ErrValidationFailed)

	// Creative is never a source.
	creative := &models.Project{
		ID: common.NewProjectID(), Department: models.DepartmentCreative,
		Status: models.StatusLive, Name: "Site", Autonomy: models.AutonomySupervised,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, h.storage.Projects().SaveProject(ctx, creative))
	_, err = h.coord.Promote(ctx, &PromoteRequest{
		SourceType:       models.SourceTypeProject,
		SourceID:         creative.ID,
		TargetDepartment: models.DepartmentStrategy,
		Actor:            "lead@acme.test",
	})
	assert.ErrorIs(t, err, models.ErrValidationFailed)

	// Trends only seed strategy.
	trend := &models.TrendCluster{ID: common.NewTrendID(), Name: "T", Department: models.DepartmentIntelligence, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, h.storage.Trends().SaveTrend(ctx, trend))
	_, err = h.coord.Promote(ctx, &PromoteRequest{
		SourceType:       models.SourceTypeTrend,
		SourceID:         trend.ID,
		TargetDepartment: models.DepartmentCreative,
		Actor:            "lead@acme.test",
	})
	assert.ErrorIs(t, err, models.ErrValidationFailed)
}

func TestPromoteStrategyToCreative(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	source := h.seedStrategySource(t, "Key findings: the market is underserved.")

	target, err := h.coord.Promote(ctx, &PromoteRequest{
		SourceType:       models.SourceTypeProject,
		SourceID:         source.ID,
		TargetDepartment: models.DepartmentCreative,
		Actor:            "lead@acme.test",
	})
	require.NoError(t, err)

	assert.Equal(t, models.DepartmentCreative, target.Department)
	assert.Equal(t, models.StatusRequested, target.Status)
	assert.Equal(t, source.Name, target.Name)
	assert.Equal(t, "Key findings: the market is underserved.", target.SourceContext)

	// Actor owns the new project; the source owner is downgraded to editor.
	role, err := h.storage.Memberships().GetRole(ctx, target.ID, "lead@acme.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, role)
	role, err = h.storage.Memberships().GetRole(ctx, target.ID, "strategist@acme.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleEditor, role)

	// Provenance edge carries the untruncated context and the quality score.
	refs, err := h.storage.References().ListByTarget(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, models.RelationshipPromotedTo, refs[0].Relationship)
	assert.Equal(t, source.ID, refs[0].SourceID)

	var meta models.PromotionMetadata
	require.NoError(t, json.Unmarshal(refs[0].Metadata, &meta))
	assert.Equal(t, "Key findings: the market is underserved.", meta.ForwardedContext)
	assert.InDelta(t, 0.9, meta.QualityScore, 0.001)

	// The creative pipeline was seeded.
	require.Len(t, h.enqueuer.enqueued, 2)
	assert.Equal(t, models.JobTypePull, h.enqueuer.enqueued[0].Type)
	assert.Equal(t, models.JobTypeNarrative, h.enqueuer.enqueued[1].Type)
}

func TestPromoteForwardsLatestApprovedResearch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	source := h.seedStrategySource(t, "approved findings")

	// A newer rejected version must never flow downstream.
	rejected := &models.Artifact{
		ID:           common.NewArtifactID(),
		ProjectID:    source.ID,
		Kind:         models.ArtifactResearch,
		Version:      2,
		Status:       models.ArtifactRejected,
		Content:      "rejected draft",
		QualityScore: 0.2,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, h.storage.Artifacts().SaveArtifact(ctx, rejected))

	target, err := h.coord.Promote(ctx, &PromoteRequest{
		SourceType:       models.SourceTypeProject,
		SourceID:         source.ID,
		TargetDepartment: models.DepartmentCreative,
		Actor:            "lead@acme.test",
	})
	require.NoError(t, err)

	assert.Equal(t, "approved findings", target.SourceContext)

	refs, err := h.storage.References().ListByTarget(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)

	var meta models.PromotionMetadata
	require.NoError(t, json.Unmarshal(refs[0].Metadata, &meta))
	assert.Equal(t, "approved findings", meta.ForwardedContext)
	assert.InDelta(t, 0.9, meta.QualityScore, 0.001)
}

func TestPromoteWithoutApprovedResearchFallsBackToNotes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	now := time.Now()
	source := &models.Project{
		ID:         common.NewProjectID(),
		Department: models.DepartmentStrategy,
		Status:     models.StatusResearchReview,
		Name:       "Early Brief",
		Autonomy:   models.AutonomySupervised,
		Notes:      "founder interview notes",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, h.storage.Projects().SaveProject(ctx, source))
	require.NoError(t, h.storage.Memberships().SaveMembership(ctx, &models.Membership{
		ID: common.NewMembershipID(), ProjectID: source.ID,
		UserID: "strategist@acme.test", Role: models.RoleOwner, CreatedAt: now,
	}))
	require.NoError(t, h.storage.Artifacts().SaveArtifact(ctx, &models.Artifact{
		ID:        common.NewArtifactID(),
		ProjectID: source.ID,
		Kind:      models.ArtifactResearch,
		Version:   1,
		Status:    models.ArtifactRejected,
		Content:   "rejected draft",
		CreatedAt: now,
	}))

	target, err := h.coord.Promote(ctx, &PromoteRequest{
		SourceType:       models.SourceTypeProject,
		SourceID:         source.ID,
		TargetDepartment: models.DepartmentCreative,
		Actor:            "lead@acme.test",
	})
	require.NoError(t, err)

	assert.Equal(t, "founder interview notes", target.SourceContext)
	assert.NotContains(t, target.SourceContext, "rejected draft")
}

func TestPromoteTruncatesOversizedContext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Well past the 4000-token default budget.
	big := strings.Repeat("insight ", 4000)
	source := h.seedStrategySource(t, big)

	target, err := h.coord.Promote(ctx, &PromoteRequest{
		SourceType:       models.SourceTypeProject,
		SourceID:         source.ID,
		TargetDepartment: models.DepartmentCreative,
		Actor:            "lead@acme.test",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(target.SourceContext, TruncationMarker))
	assert.LessOrEqual(t, EstimateTokens(target.SourceContext), 4000)

	// The stored project row matches and the metadata keeps the full copy.
	stored, err := h.storage.Projects().GetProject(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, target.SourceContext, stored.SourceContext)

	refs, err := h.storage.References().ListByTarget(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)

	var meta models.PromotionMetadata
	require.NoError(t, json.Unmarshal(refs[0].Metadata, &meta))
	assert.Equal(t, big, meta.ForwardedContext)

	// Round-trip property: the truncated copy is a prefix of the audit copy.
	prefix := strings.TrimSuffix(stored.SourceContext, TruncationMarker)
	assert.True(t, strings.HasPrefix(meta.ForwardedContext, prefix))
}

func TestPromoteTrendToStrategy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	trend := &models.TrendCluster{
		ID:         common.NewTrendID(),
		Name:       "Voice commerce",
		Department: models.DepartmentIntelligence,
		Summary:    "Steady growth in conversational purchases.",
		Signals: []models.TrendSignal{
			{Name: "assistant-orders", Lifecycle: "emerging", Velocity: 0.7, Confidence: 0.8},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, h.storage.Trends().SaveTrend(ctx, trend))

	target, err := h.coord.Promote(ctx, &PromoteRequest{
		SourceType:       models.SourceTypeTrend,
		SourceID:         trend.ID,
		TargetDepartment: models.DepartmentStrategy,
		Actor:            "analyst@acme.test",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusResearchQueued, target.Status)
	assert.Contains(t, target.SourceContext, "Voice commerce")
	assert.Contains(t, target.SourceContext, "assistant-orders")

	// Trend sources have no membership to copy; the actor owns the project.
	role, err := h.storage.Memberships().GetRole(ctx, target.ID, "analyst@acme.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, role)

	require.Len(t, h.enqueuer.enqueued, 1)
	assert.Equal(t, models.JobTypeResearch, h.enqueuer.enqueued[0].Type)
}

func TestPromoteRollsBackOnReferenceFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	source := h.seedStrategySource(t, "research body")
	h.refs.fail = true

	_, err := h.coord.Promote(ctx, &PromoteRequest{
		SourceType:       models.SourceTypeProject,
		SourceID:         source.ID,
		TargetDepartment: models.DepartmentCreative,
		Actor:            "lead@acme.test",
	})
	require.ErrorIs(t, err, models.ErrUpstreamFailure)

	// No partially-wired project is visible: only the source remains.
	projects, err := h.storage.Projects().ListProjects(ctx, nil)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, source.ID, projects[0].ID)

	// Membership rows inserted before the failure were removed.
	members, err := h.storage.Memberships().ListByProject(ctx, projects[0].ID)
	require.NoError(t, err)
	assert.Len(t, members, 1) // the original source owner

	assert.Empty(t, h.enqueuer.enqueued)
}

func TestPromoteRollsBackOnEnqueueFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	source := h.seedStrategySource(t, "research body")
	h.enqueuer.failAt = 2 // pull lands, narrative fails

	_, err := h.coord.Promote(ctx, &PromoteRequest{
		SourceType:       models.SourceTypeProject,
		SourceID:         source.ID,
		TargetDepartment: models.DepartmentCreative,
		Actor:            "lead@acme.test",
	})
	require.Error(t, err)

	// The landed job was orphaned and the reference edge removed.
	assert.Equal(t, []string{"job_1"}, h.enqueuer.orphaned)

	projects, err := h.storage.Projects().ListProjects(ctx, nil)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, source.ID, projects[0].ID)

	refs, err := h.storage.References().ListBySource(ctx, source.ID)
	require.NoError(t, err)
	assert.Empty(t, refs)
}
