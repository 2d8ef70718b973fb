package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the state of a pipeline job.
type JobStatus string

const (
	// JobStatusPending gates a job behind a human release step. Workers never
	// claim pending jobs; a supervised project's deliverables start here.
	JobStatusPending   JobStatus = "pending"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	// JobStatusOrphaned is the terminal state applied to non-terminal jobs
	// whose project was hard-deleted. Keeps the row as history instead of
	// silently abandoning it.
	JobStatusOrphaned JobStatus = "orphaned"
)

// JobType enumerates the asynchronous work the pipeline produces.
type JobType string

const (
	JobTypePull      JobType = "pull"
	JobTypeResearch  JobType = "research"
	JobTypeNarrative JobType = "narrative"
	JobTypeBuild     JobType = "build"
	JobTypeReview    JobType = "review"
	JobTypeDeploy    JobType = "deploy"
	JobTypeOnePager  JobType = "one_pager"
	JobTypeEmails    JobType = "emails"
)

// DefaultMaxAttempts is applied when an enqueue does not specify a limit.
const DefaultMaxAttempts = 3

// JobProgress is the worker-reported progress snapshot.
type JobProgress struct {
	Turn       int    `json:"turn"`
	MaxTurns   int    `json:"max_turns"`
	LastAction string `json:"last_action,omitempty"`
}

// PipelineJob is a durable record of one unit of asynchronous pipeline work.
// The payload is opaque JSON meaningful only to the worker pool. A failed
// job is immutable: retry inserts a fresh row and leaves the original as
// the audit trail.
type PipelineJob struct {
	ID          string          `json:"id" badgerhold:"key"`
	ProjectID   string          `json:"project_id" badgerholdIndex:"ProjectID"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status" badgerholdIndex:"Status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	// LastHeartbeat is refreshed on every progress report while running.
	// The lease sweeper fails running jobs whose heartbeat goes stale.
	LastHeartbeat *time.Time   `json:"last_heartbeat,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
	Progress      *JobProgress `json:"progress,omitempty"`
	// RetryOf links a retry row back to the failed job it replaces.
	RetryOf string `json:"retry_of,omitempty"`
}

// MarkStarted transitions the job to running and stamps the claim time.
func (j *PipelineJob) MarkStarted() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.LastHeartbeat = &now
	j.Attempts++
}

// MarkCompleted transitions the job to its successful terminal state.
func (j *PipelineJob) MarkCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
}

// MarkFailed transitions the job to its failed terminal state.
// Format errors as "Category: Brief description" so the UI can surface them.
func (j *PipelineJob) MarkFailed(errorMsg string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.LastError = errorMsg
	j.CompletedAt = &now
}

// IsTerminal reports whether the job can no longer change state.
func (j *PipelineJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusOrphaned
}

// Duration returns the wall-clock execution time for a finished job.
func (j *PipelineJob) Duration() (time.Duration, bool) {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0, false
	}
	return j.CompletedAt.Sub(*j.StartedAt), true
}

// Validate checks the invariants a job row must satisfy before persistence.
func (j *PipelineJob) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("%w: job ID is required", ErrValidationFailed)
	}
	if j.ProjectID == "" {
		return fmt.Errorf("%w: project ID is required", ErrValidationFailed)
	}
	if j.Type == "" {
		return fmt.Errorf("%w: job type is required", ErrValidationFailed)
	}
	if j.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be positive", ErrValidationFailed)
	}
	if j.Status == JobStatusQueued && j.Attempts >= j.MaxAttempts {
		return fmt.Errorf("%w: attempts %d exceeds max %d for queued job", ErrValidationFailed, j.Attempts, j.MaxAttempts)
	}
	if j.Status == JobStatusRunning && j.Attempts > j.MaxAttempts {
		return fmt.Errorf("%w: attempts %d exceeds max %d for running job", ErrValidationFailed, j.Attempts, j.MaxAttempts)
	}
	return nil
}
