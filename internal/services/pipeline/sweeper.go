package pipeline

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/common"
)

// Sweeper periodically fails running jobs whose heartbeat lease expired,
// reclaiming work from crashed or partitioned workers. The failed rows then
// follow the normal human retry path.
type Sweeper struct {
	service *Service
	cron    *cron.Cron
	config  *common.Config
	logger  arbor.ILogger
}

// NewSweeper creates a lease sweeper on the configured cron schedule.
func NewSweeper(service *Service, config *common.Config, logger arbor.ILogger) (*Sweeper, error) {
	s := &Sweeper{
		service: service,
		cron:    cron.New(),
		config:  config,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(config.Pipeline.SweepSchedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", config.Pipeline.SweepSchedule, err)
	}
	return s, nil
}

// Start begins the sweep schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info().Str("schedule", s.config.Pipeline.SweepSchedule).Msg("Lease sweeper started")
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Lease sweeper stopped")
}

// sweep is one scheduled pass. Each expired job goes through the normal
// failure path so lifecycle hooks and notifications fire as usual.
func (s *Sweeper) sweep() {
	ctx := context.Background()

	lease, err := s.config.LeaseDuration()
	if err != nil {
		s.logger.Error().Err(err).Msg("Invalid lease duration, skipping sweep")
		return
	}

	stale, err := s.service.jobs.StaleRunning(ctx, int(lease.Seconds()))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query stale running jobs")
		return
	}
	if len(stale) == 0 {
		return
	}

	s.logger.Warn().Int("count", len(stale)).Msg("Sweeping expired job leases")

	for _, job := range stale {
		if err := s.service.Fail(ctx, job.ID, "Timeout: worker lease expired"); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to fail expired job")
		}
	}
}
