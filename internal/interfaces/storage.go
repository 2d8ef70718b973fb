package interfaces

import (
	"context"

	"github.com/ternarybob/fabrica/internal/models"
)

// ProjectStorage owns Project rows. Status is only changed through
// UpdateStatusCAS so concurrent transitions cannot double-apply.
type ProjectStorage interface {
	SaveProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, projectID string) (*models.Project, error)
	ListProjects(ctx context.Context, opts *ProjectListOptions) ([]*models.Project, error)
	// UpdateStatusCAS transitions status from expected to next in a single
	// conditional write; a non-nil mutate applies extra field changes to the
	// matched row in the same write. Returns models.ErrInvalidState when the
	// current status no longer matches expected.
	UpdateStatusCAS(ctx context.Context, projectID string, expected, next models.ProjectStatus, mutate func(*models.Project)) error
	// UpdateProject persists non-status field changes (notes, source
	// context).
	UpdateProject(ctx context.Context, project *models.Project) error
	DeleteProject(ctx context.Context, projectID string) error
}

// ProjectListOptions filters project listings.
type ProjectListOptions struct {
	Department string
	Status     string
	Limit      int
	Offset     int
}

// ArtifactStorage owns reviewable artifact rows.
type ArtifactStorage interface {
	SaveArtifact(ctx context.Context, artifact *models.Artifact) error
	GetArtifact(ctx context.Context, artifactID string) (*models.Artifact, error)
	// GetCurrentArtifact returns the highest version of the given kind.
	GetCurrentArtifact(ctx context.Context, projectID string, kind models.ArtifactKind) (*models.Artifact, error)
	// GetApprovedArtifact returns the highest approved version of the given
	// kind, skipping rejected and superseded versions above it.
	GetApprovedArtifact(ctx context.Context, projectID string, kind models.ArtifactKind) (*models.Artifact, error)
	ListArtifacts(ctx context.Context, projectID string) ([]*models.Artifact, error)
	// NextVersion returns the next monotonic version for project+kind.
	NextVersion(ctx context.Context, projectID string, kind models.ArtifactKind) (int, error)
	// UpdateStatusCAS applies a review decision conditionally: the update
	// succeeds only if the artifact status still equals expected. A lost
	// race returns models.ErrAlreadyReviewed.
	UpdateStatusCAS(ctx context.Context, artifactID string, expected, next models.ArtifactStatus, reviewedBy, notes string) error
	DeleteByProject(ctx context.Context, projectID string) error
}

// JobStorage owns pipeline job rows. The worker pool is the only caller of
// ClaimNext; the core only creates and reads jobs.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.PipelineJob) error
	GetJob(ctx context.Context, jobID string) (*models.PipelineJob, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.PipelineJob, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.PipelineJob, error)
	// ClaimNext atomically transitions the oldest queued job matching the
	// capability set to running. Returns nil when nothing is claimable.
	ClaimNext(ctx context.Context, capabilities []models.JobType) (*models.PipelineJob, error)
	CountByStatus(ctx context.Context, status models.JobStatus) (int, error)
	// CountActiveBefore counts globally running+queued jobs created strictly
	// before the given job. Feeds the queue-position estimator.
	CountActiveBefore(ctx context.Context, job *models.PipelineJob) (int, error)
	// RecentCompletions returns up to limit completed jobs ordered most
	// recent first, for average-duration estimation.
	RecentCompletions(ctx context.Context, limit int) ([]*models.PipelineJob, error)
	// StaleRunning returns running jobs whose heartbeat is older than the
	// threshold.
	StaleRunning(ctx context.Context, thresholdSeconds int) ([]*models.PipelineJob, error)
	// UpdateJobCAS applies mutate in a single conditional write while the
	// job's status is one of expected. A job in any other status returns
	// models.ErrInvalidState; a missing job returns models.ErrNotFound.
	UpdateJobCAS(ctx context.Context, jobID string, expected []models.JobStatus, mutate func(*models.PipelineJob)) error
	// OrphanByProject moves a project's non-terminal jobs to the orphaned
	// terminal state and returns how many were affected.
	OrphanByProject(ctx context.Context, projectID string) (int, error)
}

// JobListOptions filters job listings.
type JobListOptions struct {
	ProjectID string
	Status    string
	Type      string
	Limit     int
	Offset    int
}

// ReferenceStorage owns the append-only cross-department provenance graph.
type ReferenceStorage interface {
	SaveReference(ctx context.Context, ref *models.CrossDeptReference) error
	GetReference(ctx context.Context, refID string) (*models.CrossDeptReference, error)
	ListBySource(ctx context.Context, sourceID string) ([]*models.CrossDeptReference, error)
	ListByTarget(ctx context.Context, targetID string) ([]*models.CrossDeptReference, error)
	DeleteReference(ctx context.Context, refID string) error
}

// MembershipStorage owns project membership rows.
type MembershipStorage interface {
	SaveMembership(ctx context.Context, m *models.Membership) error
	GetRole(ctx context.Context, projectID, userID string) (models.Role, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.Membership, error)
	DeleteMembership(ctx context.Context, membershipID string) error
	DeleteByProject(ctx context.Context, projectID string) error
}

// TrendStorage owns intelligence trend clusters.
type TrendStorage interface {
	SaveTrend(ctx context.Context, trend *models.TrendCluster) error
	GetTrend(ctx context.Context, trendID string) (*models.TrendCluster, error)
	ListTrends(ctx context.Context, limit int) ([]*models.TrendCluster, error)
}

// NotificationStorage owns notification rows.
type NotificationStorage interface {
	SaveNotification(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
	DeleteByProject(ctx context.Context, projectID string) error
}

// StorageManager aggregates the stores behind a single connection.
type StorageManager interface {
	Projects() ProjectStorage
	Artifacts() ArtifactStorage
	Jobs() JobStorage
	References() ReferenceStorage
	Memberships() MembershipStorage
	Trends() TrendStorage
	Notifications() NotificationStorage
	Close() error
}
