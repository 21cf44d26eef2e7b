// Package scheduler runs the pipeline periodically in daemon mode.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/grid-delta-etl/internal/pipeline"
	"github.com/go-co-op/gocron"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) (pipeline.Report, error)
}

// Scheduler triggers a Runner every interval. Runs never overlap.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger
	cancel    context.CancelFunc
}

// New creates a Scheduler. The first run starts as soon as Start is called.
func New(interval time.Duration, runner Runner, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. Runs
// receive a context derived from ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}

	jobCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	_, err := s.scheduler.Every(s.interval).Do(func() {
		if jobCtx.Err() != nil {
			return
		}
		if _, err := s.runner.Run(jobCtx); err != nil {
			s.logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return err
	}

	s.logger.Info("scheduler started", "interval", s.interval)
	s.scheduler.StartAsync()
	return nil
}

// Stop cancels the in-flight run, if any, and stops future ticks.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
}
