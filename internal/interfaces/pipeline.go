package interfaces

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/fabrica/internal/models"
)

// EnqueueOptions tunes a single enqueue. Zero value means status queued with
// the configured default attempt budget.
type EnqueueOptions struct {
	// InitialStatus is queued unless a human release gate applies, in which
	// case it is pending.
	InitialStatus models.JobStatus
	MaxAttempts   int
}

// PipelineEnqueuer is the lifecycle state machine's view of the job queue:
// it creates jobs and abandons them during compensation, never executes them.
type PipelineEnqueuer interface {
	Enqueue(ctx context.Context, projectID string, jobType models.JobType, payload json.RawMessage, opts *EnqueueOptions) (*models.PipelineJob, error)
	// Orphan moves a single non-terminal job to the orphaned terminal state.
	// Used when a compound operation rolls back after some enqueues landed.
	Orphan(ctx context.Context, jobID string, reason string) error
	// OrphanProject orphans every non-terminal job of a project.
	OrphanProject(ctx context.Context, projectID string) (int, error)
}

// LifecycleHooks is the pipeline's callback into the state machine. The
// worker pool reports job outcomes to the pipeline; these hooks apply the
// resulting project transitions so that project status stays under the
// lifecycle state machine's exclusive control.
type LifecycleHooks interface {
	// OnJobStarted fires after a worker claims a job.
	OnJobStarted(ctx context.Context, job *models.PipelineJob)
	// OnJobCompleted fires after a job reaches completed. For generation
	// jobs it records the produced artifact and advances the project.
	OnJobCompleted(ctx context.Context, job *models.PipelineJob, result json.RawMessage) error
	// OnJobFailed fires after a job reaches failed. Never changes project
	// status; the project waits for a human retry or escalation.
	OnJobFailed(ctx context.Context, job *models.PipelineJob)
}
