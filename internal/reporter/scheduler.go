package reporter

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler wraps a gocron scheduler and registers the agent's periodic
// reporting jobs on it: the fingerprint Reporter and, if configured, the
// LocationReporter.
type Scheduler struct {
	gocron gocron.Scheduler
	logger *slog.Logger
}

// NewScheduler creates a Scheduler with no jobs registered. Each job run is
// handed the ctx given to RegisterReporter or RegisterLocationReporter; runs
// keep being scheduled until Stop is called.
func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{gocron: s, logger: logger}, nil
}

// RegisterReporter schedules reporter.ReportOnce to run every interval.
func (s *Scheduler) RegisterReporter(ctx context.Context, r *Reporter, interval time.Duration) error {
	_, err := s.gocron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { r.ReportOnce(ctx) }),
	)
	if err != nil {
		return err
	}
	s.logger.Info("reporter: scheduled fingerprint reporting job", slog.Duration("interval", interval))
	return nil
}

// RegisterLocationReporter schedules a LocationReporter to run every
// interval.
func (s *Scheduler) RegisterLocationReporter(ctx context.Context, l *LocationReporter, interval time.Duration) error {
	_, err := s.gocron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { l.ReportOnce(ctx) }),
	)
	if err != nil {
		return err
	}
	s.logger.Info("reporter: scheduled location reporting job", slog.Duration("interval", interval))
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() { s.gocron.Start() }

// Stop shuts the scheduler down, waiting for any in-flight job runs.
func (s *Scheduler) Stop() error {
	return s.gocron.Shutdown()
}
