// Package liquidation runs the solvency-monitoring cycle and seizes
// collateral from loans that have fallen below the protocol threshold.
package liquidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/lendingcore/internal/domain"
	"github.com/alanyoungcy/lendingcore/internal/monitor"
)

// cycleLockKey is the distributed lock guarding the monitoring cycle so
// overlapping timers or multiple replicas never double-liquidate.
const cycleLockKey = "liquidation:cycle"

// Engine checks every active loan against the collateral threshold and
// liquidates the ones that fail. Cycles are serialized: an in-process mutex
// guards against overlapping timers, the lock manager against replicas.
type Engine struct {
	loans    domain.LoanStore
	monitor  *monitor.CollateralMonitor
	feed     domain.PriceFeed
	transfer domain.TransferExecutor
	events   domain.EventRecorder
	locks    domain.LockManager
	params   domain.ParamsProvider
	lockTTL  time.Duration
	logger   *slog.Logger

	mu sync.Mutex
}

// NewEngine wires a liquidation engine from its collaborators.
func NewEngine(
	loans domain.LoanStore,
	mon *monitor.CollateralMonitor,
	feed domain.PriceFeed,
	transfer domain.TransferExecutor,
	events domain.EventRecorder,
	locks domain.LockManager,
	params domain.ParamsProvider,
	lockTTL time.Duration,
	logger *slog.Logger,
) *Engine {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &Engine{
		loans:    loans,
		monitor:  mon,
		feed:     feed,
		transfer: transfer,
		events:   events,
		locks:    locks,
		params:   params,
		lockTTL:  lockTTL,
		logger:   logger.With(slog.String("component", "liquidation_engine")),
	}
}

// RunCycle checks every ACTIVE loan exactly once against a parameter
// snapshot taken at cycle start, liquidating flagged loans synchronously
// before advancing to the next. Returns the checks performed. A cycle held
// by another runner returns ErrLockHeld.
func (e *Engine) RunCycle(ctx context.Context) ([]domain.LiquidationCheck, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	unlock, err := e.locks.Acquire(ctx, cycleLockKey, e.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			e.logger.Info("cycle already running elsewhere, skipping")
		}
		return nil, fmt.Errorf("liquidation: acquire cycle lock: %w", err)
	}
	defer unlock()

	params := e.params.Current(ctx)
	started := time.Now()

	loans, err := e.loans.ListByStatus(ctx, domain.LoanStatusActive, domain.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("liquidation: list active loans: %w", err)
	}

	checks := make([]domain.LiquidationCheck, 0, len(loans))
	liquidated := 0
	for _, loan := range loans {
		if ctx.Err() != nil {
			return checks, ctx.Err()
		}

		check, err := e.monitor.CheckWithParams(ctx, loan, params)
		if err != nil {
			e.logger.Error("collateral check failed",
				slog.String("loan_id", loan.ID), slog.Any("error", err))
			e.events.Record(ctx, domain.EventLiquidationFailed, map[string]any{
				"loan_id": loan.ID,
				"stage":   "check",
				"error":   err.Error(),
			})
			continue
		}
		checks = append(checks, check)
		e.events.Record(ctx, domain.EventLiquidationCheck, map[string]any{
			"loan_id":           loan.ID,
			"ratio":             check.CurrentCollateralRatio,
			"needs_liquidation": check.NeedsLiquidation,
		})

		if check.NeedsLiquidation {
			result, err := e.liquidateLoan(ctx, loan, check.LiquidationAmount, params)
			if err != nil {
				e.logger.Error("liquidation failed",
					slog.String("loan_id", loan.ID), slog.Any("error", err))
				continue
			}
			if result.Success {
				liquidated++
			}
			continue
		}

		e.refreshCollateral(ctx, loan, check)
	}

	e.events.Record(ctx, domain.EventCycleCompleted, map[string]any{
		"checked":     len(checks),
		"liquidated":  liquidated,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	e.logger.Info("cycle completed",
		slog.Int("checked", len(checks)),
		slog.Int("liquidated", liquidated),
		slog.Duration("took", time.Since(started)))

	return checks, nil
}

// refreshCollateral persists the freshly computed ratio and value on a
// healthy loan. A version conflict just means someone else updated the loan
// mid-cycle; the next cycle will recompute.
func (e *Engine) refreshCollateral(ctx context.Context, loan domain.ActiveLoan, check domain.LiquidationCheck) {
	loan.CurrentCollateralRatio = check.CurrentCollateralRatio
	loan.CollateralValue = check.CollateralValue
	loan.UpdatedAt = time.Now()
	if err := e.loans.Update(ctx, loan); err != nil && !errors.Is(err, domain.ErrVersionConflict) {
		e.logger.Warn("collateral refresh failed",
			slog.String("loan_id", loan.ID), slog.Any("error", err))
	}
}

// Liquidate seizes collateral for a single loan outside a cycle, for
// operator-triggered liquidations. The loan is re-read so a concurrent
// cycle that already settled it surfaces ErrStateConflict.
func (e *Engine) Liquidate(ctx context.Context, loanID string, amount float64) (domain.LiquidationResult, error) {
	loan, err := e.loans.GetByID(ctx, loanID)
	if err != nil {
		return domain.LiquidationResult{}, fmt.Errorf("liquidation: load loan %s: %w", loanID, err)
	}
	return e.liquidateLoan(ctx, loan, amount, e.params.Current(ctx))
}

// liquidateLoan performs one seizure. No loan state is mutated until the
// transfer succeeds; any failure leaves the loan ACTIVE for the next cycle.
func (e *Engine) liquidateLoan(ctx context.Context, loan domain.ActiveLoan, amount float64, params domain.ProtocolParams) (domain.LiquidationResult, error) {
	if loan.Status != domain.LoanStatusActive {
		return domain.LiquidationResult{LoanID: loan.ID, RemainingDebt: loan.RemainingAmount},
			fmt.Errorf("liquidation: loan %s is %s: %w", loan.ID, loan.Status, domain.ErrStateConflict)
	}

	penalty := amount * params.LiquidationPenalty
	totalDue := amount + penalty

	collateralValue, err := e.feed.CollateralValue(ctx, loan)
	if err != nil {
		return e.failResult(ctx, loan, "collateral_fetch", err), nil
	}

	seized := totalDue
	partial := false
	if collateralValue < totalDue {
		seized = collateralValue * params.PartialSeizureRate
		partial = true
	}

	receipt, err := e.transfer.ExecuteTransfer(ctx, loan.BorrowerID, loan.LenderID, seized)
	if err != nil {
		return e.failResult(ctx, loan, "transfer", err), nil
	}

	debtBefore := loan.RemainingAmount
	loan.Status = domain.LoanStatusLiquidated
	if partial {
		loan.RemainingAmount = math.Max(0, debtBefore-seized)
	} else {
		loan.RemainingAmount = 0
	}
	loan.CollateralValue = collateralValue
	loan.UpdatedAt = time.Now()

	if err := e.loans.Update(ctx, loan); err != nil {
		// Collateral has been seized but the record did not settle. This
		// needs operator attention, so it is recorded loudly.
		e.logger.Error("loan update failed after seizure",
			slog.String("loan_id", loan.ID),
			slog.String("transaction_ref", receipt.TransactionRef),
			slog.Any("error", err))
		e.events.Record(ctx, domain.EventLiquidationFailed, map[string]any{
			"loan_id":         loan.ID,
			"stage":           "persist",
			"transaction_ref": receipt.TransactionRef,
			"error":           err.Error(),
		})
		return domain.LiquidationResult{LoanID: loan.ID, RemainingDebt: debtBefore, Err: err.Error()},
			fmt.Errorf("liquidation: persist loan %s: %w", loan.ID, err)
	}

	result := domain.LiquidationResult{
		Success:          true,
		LoanID:           loan.ID,
		LiquidatedAmount: seized,
		RemainingDebt:    math.Max(0, debtBefore-seized),
		Partial:          partial,
		TransactionRef:   receipt.TransactionRef,
	}

	e.events.Record(ctx, domain.EventLiquidationExecuted, map[string]any{
		"loan_id":         loan.ID,
		"seized":          seized,
		"penalty":         penalty,
		"partial":         partial,
		"remaining_debt":  result.RemainingDebt,
		"transaction_ref": receipt.TransactionRef,
	})
	e.logger.Info("loan liquidated",
		slog.String("loan_id", loan.ID),
		slog.Float64("seized", seized),
		slog.Bool("partial", partial))

	return result, nil
}

// failResult records a liquidation failure and returns an unsuccessful
// result with the debt unchanged. The loan stays ACTIVE for retry.
func (e *Engine) failResult(ctx context.Context, loan domain.ActiveLoan, stage string, err error) domain.LiquidationResult {
	e.logger.Error("liquidation step failed",
		slog.String("loan_id", loan.ID),
		slog.String("stage", stage),
		slog.Any("error", err))
	e.events.Record(ctx, domain.EventLiquidationFailed, map[string]any{
		"loan_id": loan.ID,
		"stage":   stage,
		"error":   err.Error(),
	})
	return domain.LiquidationResult{
		LoanID:        loan.ID,
		RemainingDebt: loan.RemainingAmount,
		Err:           err.Error(),
	}
}
