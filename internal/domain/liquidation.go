package domain

// LiquidationCheck is the ephemeral result of one collateral health check.
// Checks are recomputed every monitoring cycle and are not persisted; only
// the liquidation events they trigger are.
type LiquidationCheck struct {
	LoanID                  string
	CurrentCollateralRatio  float64
	RequiredCollateralRatio float64
	NeedsLiquidation        bool
	LiquidationAmount       float64
	CollateralValue         float64
	DebtAmount              float64
}

// LiquidationResult records the outcome of a liquidation attempt.
type LiquidationResult struct {
	Success          bool
	LoanID           string
	LiquidatedAmount float64
	RemainingDebt    float64
	Partial          bool
	TransactionRef   string
	Err              string
}
