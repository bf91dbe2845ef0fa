package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper finalizes sanctions whose clocks have run out
type Sweeper interface {
	SweepApprovalWindows(ctx context.Context) error
	SweepElapsedEmbargoes(ctx context.Context) error
}

// Config holds the sweep schedules as cron expressions
type Config struct {
	ApprovalWindowSpec string
	EmbargoSpec        string
	SweepTimeout       time.Duration
}

// Scheduler runs the periodic sanction sweeps: expired approval windows
// are finalized as consent, elapsed embargoes are completed.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	cfg     Config
	logger  *zap.Logger
}

// New creates the scheduler; Start registers and runs the jobs
func New(sweeper Sweeper, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.ApprovalWindowSpec == "" {
		cfg.ApprovalWindowSpec = "@every 10m"
	}
	if cfg.EmbargoSpec == "" {
		cfg.EmbargoSpec = "@hourly"
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 5 * time.Minute
	}
	return &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start registers the sweep jobs and starts the cron loop
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.ApprovalWindowSpec, func() {
		s.runSweep("approval_windows", s.sweeper.SweepApprovalWindows)
	}); err != nil {
		return fmt.Errorf("failed to schedule approval window sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.EmbargoSpec, func() {
		s.runSweep("elapsed_embargoes", s.sweeper.SweepElapsedEmbargoes)
	}); err != nil {
		return fmt.Errorf("failed to schedule embargo sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Sanction sweep scheduler started",
		zap.String("approval_window_spec", s.cfg.ApprovalWindowSpec),
		zap.String("embargo_spec", s.cfg.EmbargoSpec))
	return nil
}

// Stop halts the cron loop and waits for running sweeps
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Sanction sweep scheduler stopped")
}

func (s *Scheduler) runSweep(name string, sweep func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepTimeout)
	defer cancel()

	start := time.Now()
	if err := sweep(ctx); err != nil {
		s.logger.Error("Sweep failed", zap.String("sweep", name), zap.Error(err))
		return
	}
	s.logger.Debug("Sweep completed",
		zap.String("sweep", name),
		zap.Duration("elapsed", time.Since(start)))
}
