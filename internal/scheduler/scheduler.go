package scheduler

import (
	"context"
	"log/slog"
	"time"

	"pubgate/internal/domain"
)

// Runner is one orchestrator pass.
type Runner interface {
	Run(ctx context.Context) (*domain.PassStats, error)
}

type Scheduler struct {
	runner      Runner
	interval    time.Duration
	passTimeout time.Duration
	logger      *slog.Logger
}

func NewScheduler(runner Runner, interval, passTimeout time.Duration, logger *slog.Logger) *Scheduler {
	if passTimeout <= 0 {
		passTimeout = 2 * time.Hour
	}
	return &Scheduler{
		runner:      runner,
		interval:    interval,
		passTimeout: passTimeout,
		logger:      logger,
	}
}

// Start runs a pass immediately, then one per interval until ctx is done.
// A non-positive interval means run once and return.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("scheduler running single pass")
		s.runPass(ctx)
		return ctx.Err()
	}

	s.logger.Info("scheduler started", "interval", s.interval)

	s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, s.passTimeout)
	defer cancel()

	if _, err := s.runner.Run(passCtx); err != nil {
		s.logger.Error("pass failed", "error", err)
	}
}
