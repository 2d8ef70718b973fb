package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/fabrica/internal/models"
)

// QueuePosition is the waiting-line view for a not-yet-running job.
type QueuePosition struct {
	JobID    string           `json:"job_id"`
	Status   models.JobStatus `json:"status"`
	Position int              `json:"position"`
	// AverageDuration is the mean runtime of recent completions, or the
	// configured fallback when no history exists.
	AverageDuration time.Duration `json:"average_duration"`
	EstimatedWait   time.Duration `json:"estimated_wait"`
	// Estimated is false when the fallback duration was used.
	Estimated bool `json:"estimated"`
}

// QueuePosition estimates where a queued or pending job sits in the global
// waiting line and how long until it runs. Position counts active jobs
// created strictly before this one; the wait multiplies that by the average
// runtime of the recent completion window, so a job with nothing ahead of
// it reports position zero and no wait.
func (s *Service) QueuePosition(ctx context.Context, jobID string) (*QueuePosition, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusQueued && job.Status != models.JobStatusPending {
		return nil, fmt.Errorf("%w: job %s is %q, position applies to queued or pending jobs",
			models.ErrInvalidState, jobID, job.Status)
	}

	ahead, err := s.jobs.CountActiveBefore(ctx, job)
	if err != nil {
		return nil, err
	}

	avg, estimated, err := s.averageDuration(ctx)
	if err != nil {
		return nil, err
	}

	return &QueuePosition{
		JobID:           job.ID,
		Status:          job.Status,
		Position:        ahead,
		AverageDuration: avg,
		EstimatedWait:   time.Duration(ahead) * avg,
		Estimated:       estimated,
	}, nil
}

// averageDuration returns the mean runtime over the recent completion
// window. Completions without both timestamps are skipped; an empty window
// falls back to the configured wait.
func (s *Service) averageDuration(ctx context.Context) (time.Duration, bool, error) {
	window := s.config.Pipeline.EstimatorWindow
	completions, err := s.jobs.RecentCompletions(ctx, window)
	if err != nil {
		return 0, false, err
	}

	var total time.Duration
	counted := 0
	for _, job := range completions {
		if d, ok := job.Duration(); ok {
			total += d
			counted++
		}
	}

	if counted == 0 {
		fallback, err := s.config.FallbackWait()
		if err != nil {
			return 0, false, err
		}
		return fallback, false, nil
	}
	return total / time.Duration(counted), true, nil
}
