// Package monitor evaluates collateral health for active loans against the
// protocol liquidation threshold.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

// CollateralMonitor values collateral through a price feed and decides
// whether a loan has fallen below the liquidation threshold.
type CollateralMonitor struct {
	feed   domain.PriceFeed
	params domain.ParamsProvider
	logger *slog.Logger
}

// NewCollateralMonitor builds a monitor backed by the given price feed and
// protocol parameter source.
func NewCollateralMonitor(feed domain.PriceFeed, params domain.ParamsProvider, logger *slog.Logger) *CollateralMonitor {
	return &CollateralMonitor{
		feed:   feed,
		params: params,
		logger: logger.With(slog.String("component", "collateral_monitor")),
	}
}

// Check revalues the loan's collateral and reports whether it needs
// liquidation under the current protocol parameters.
func (m *CollateralMonitor) Check(ctx context.Context, loan domain.ActiveLoan) (domain.LiquidationCheck, error) {
	params := m.params.Current(ctx)
	return m.CheckWithParams(ctx, loan, params)
}

// CheckWithParams is Check with an explicit parameter snapshot, so a batch
// cycle can evaluate every loan against one consistent set of parameters.
func (m *CollateralMonitor) CheckWithParams(ctx context.Context, loan domain.ActiveLoan, params domain.ProtocolParams) (domain.LiquidationCheck, error) {
	collateralValue, err := m.feed.CollateralValue(ctx, loan)
	if err != nil {
		return domain.LiquidationCheck{}, fmt.Errorf("monitor: value collateral for loan %s: %w", loan.ID, err)
	}

	debt := loan.RemainingAmount

	// A fully repaid loan can never be undercollateralized, whatever the
	// collateral is worth.
	ratio := math.Inf(1)
	if debt > 0 {
		ratio = collateralValue / debt
	}

	check := domain.LiquidationCheck{
		LoanID:                  loan.ID,
		CurrentCollateralRatio:  ratio,
		RequiredCollateralRatio: params.LiquidationThreshold,
		CollateralValue:         collateralValue,
		DebtAmount:              debt,
	}

	if debt > 0 && ratio < params.LiquidationThreshold {
		check.NeedsLiquidation = true
		check.LiquidationAmount = math.Max(0, debt-collateralValue/params.LiquidationThreshold)
		m.logger.Warn("loan undercollateralized",
			slog.String("loan_id", loan.ID),
			slog.Float64("ratio", ratio),
			slog.Float64("threshold", params.LiquidationThreshold),
			slog.Float64("liquidation_amount", check.LiquidationAmount))
	}

	return check, nil
}
