package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/elonfeng/hexarchive/internal/syncer"
)

// Runner performs one sync.
type Runner interface {
	Run(ctx context.Context) (*syncer.Report, error)
}

// Scheduler runs periodic syncs.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	log      *slog.Logger
}

// New creates a new scheduler.
func New(runner Runner, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval == 0 {
		interval = 6 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		log:      log,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start.
	s.log.Info("scheduler: initial sync")
	s.syncOnce(ctx)

	s.log.Info("scheduler: running", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

// syncOnce runs a sync and logs the outcome. A failed sync leaves the
// previous cache serving and is retried on the next tick.
func (s *Scheduler) syncOnce(ctx context.Context) {
	report, err := s.runner.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("scheduler: sync failed", "error", err)
		}
		return
	}
	s.log.Info("scheduler: synced", "summary", report.Summary())
}
