package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/lendingcore/internal/domain"
	"github.com/alanyoungcy/lendingcore/internal/liquidation"
	"github.com/alanyoungcy/lendingcore/internal/monitor"
	"github.com/alanyoungcy/lendingcore/internal/scheduler"
)

// FullMode runs the price feed, the liquidation cycle ticker, and the
// archiver when cold storage is enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	engine := a.buildEngine(deps)

	archiveInterval := time.Duration(0)
	if deps.Archiver != nil {
		archiveInterval = a.cfg.Archive.Interval.Duration
	}

	runner := scheduler.NewRunner(scheduler.Config{
		CycleInterval:   a.cfg.Liquidation.CycleInterval.Duration,
		ArchiveInterval: archiveInterval,
	}, engine, deps.FeedRunner, archiverOrNil(deps), a.logger)

	return runner.Run(ctx)
}

// MonitorMode keeps the price feed running and sweeps the loan book for
// collateral health, recording check events without executing liquidations.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	mon := monitor.NewCollateralMonitor(deps.Feed, deps.Params, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := deps.FeedRunner.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("price feed: %w", err)
	})

	g.Go(func() error {
		err := a.watchLoop(ctx, mon, deps)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	return g.Wait()
}

// ArchiveMode ships one archive batch immediately and then repeats on the
// configured interval.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires s3 configuration")
	}

	if err := deps.Archiver.Run(ctx); err != nil {
		a.logger.Error("archive batch failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := deps.Archiver.Run(ctx); err != nil {
				a.logger.Error("archive batch failed", slog.String("error", err.Error()))
			}
		}
	}
}

// MigrateMode applies pending database migrations and exits.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running migrations")
	if err := deps.Migrate(ctx); err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	a.logger.Info("migrations complete")
	return nil
}

func (a *App) buildEngine(deps *Dependencies) *liquidation.Engine {
	mon := monitor.NewCollateralMonitor(deps.Feed, deps.Params, a.logger)
	return liquidation.NewEngine(
		deps.Loans,
		mon,
		deps.Feed,
		deps.Transfer,
		deps.Recorder,
		deps.Locks,
		deps.Params,
		a.cfg.Liquidation.LockTTL.Duration,
		a.logger,
	)
}

// watchLoop checks every active loan once per cycle interval.
func (a *App) watchLoop(ctx context.Context, mon *monitor.CollateralMonitor, deps *Dependencies) error {
	interval := a.cfg.Liquidation.CycleInterval.Duration
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.sweepLoans(ctx, mon, deps)
		}
	}
}

func (a *App) sweepLoans(ctx context.Context, mon *monitor.CollateralMonitor, deps *Dependencies) {
	loans, err := deps.Loans.ListByStatus(ctx, domain.LoanStatusActive, domain.ListOpts{})
	if err != nil {
		a.logger.Error("list active loans failed", slog.String("error", err.Error()))
		return
	}

	for _, loan := range loans {
		check, err := mon.Check(ctx, loan)
		if err != nil {
			a.logger.Error("collateral check failed",
				slog.String("loan_id", loan.ID),
				slog.String("error", err.Error()))
			continue
		}
		deps.Recorder.Record(ctx, domain.EventLiquidationCheck, map[string]any{
			"loan_id":           loan.ID,
			"collateral_ratio":  check.CurrentCollateralRatio,
			"collateral_value":  check.CollateralValue,
			"needs_liquidation": check.NeedsLiquidation,
		})
	}
}

func archiverOrNil(deps *Dependencies) scheduler.BatchJob {
	if deps.Archiver == nil {
		return nil
	}
	return deps.Archiver
}
