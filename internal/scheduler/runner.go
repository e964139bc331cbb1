// Package scheduler coordinates the long-running loops of the lending core:
// the price feed, periodic liquidation cycles, and cold-storage archival.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

// CycleRunner executes one liquidation sweep over the active loan book.
type CycleRunner interface {
	RunCycle(ctx context.Context) ([]domain.LiquidationCheck, error)
}

// BatchJob is a periodic one-shot job such as the archiver.
type BatchJob interface {
	Run(ctx context.Context) error
}

// FeedRunner keeps the price cache warm until ctx is cancelled.
type FeedRunner interface {
	Run(ctx context.Context) error
}

// Config controls the runner's schedules. A zero ArchiveInterval or nil
// Archiver disables archival; a nil Feed disables the price stream.
type Config struct {
	CycleInterval   time.Duration
	ArchiveInterval time.Duration
}

// Runner drives the scheduled loops with an errgroup. A failing loop cancels
// the shared context and stops the others.
type Runner struct {
	cfg      Config
	engine   CycleRunner
	feed     FeedRunner
	archiver BatchJob
	logger   *slog.Logger
}

// NewRunner creates a runner. feed and archiver may be nil.
func NewRunner(cfg Config, engine CycleRunner, feed FeedRunner, archiver BatchJob, logger *slog.Logger) *Runner {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 5 * time.Minute
	}
	return &Runner{
		cfg:      cfg,
		engine:   engine,
		feed:     feed,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Run blocks until ctx is cancelled or a loop fails.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("scheduler starting",
		slog.Duration("cycle_interval", r.cfg.CycleInterval),
		slog.Duration("archive_interval", r.cfg.ArchiveInterval))

	g, ctx := errgroup.WithContext(ctx)

	if r.feed != nil {
		g.Go(func() error {
			err := r.feed.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("price feed: %w", err)
		})
	}

	g.Go(func() error {
		err := r.cycleLoop(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("liquidation cycles: %w", err)
	})

	if r.archiver != nil && r.cfg.ArchiveInterval > 0 {
		g.Go(func() error {
			err := r.archiveLoop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		r.logger.Error("scheduler stopped with error", slog.String("error", err.Error()))
		return err
	}

	r.logger.Info("scheduler stopped cleanly")
	return nil
}

// cycleLoop runs a liquidation sweep immediately and then on every tick.
// A cycle skipped because another instance holds the lock is routine, not a
// failure.
func (r *Runner) cycleLoop(ctx context.Context) error {
	r.runCycle(ctx)

	ticker := time.NewTicker(r.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Runner) runCycle(ctx context.Context) {
	checks, err := r.engine.RunCycle(ctx)
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		r.logger.Info("cycle skipped, lock held elsewhere")
	case err != nil:
		r.logger.Error("liquidation cycle failed", slog.String("error", err.Error()))
	default:
		r.logger.Debug("liquidation cycle done", slog.Int("checked", len(checks)))
	}
}

func (r *Runner) archiveLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.ArchiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.archiver.Run(ctx); err != nil {
				r.logger.Error("archive batch failed", slog.String("error", err.Error()))
			}
		}
	}
}
