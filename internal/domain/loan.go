package domain

import "time"

// LoanStatus tracks an active loan. Repaid, defaulted, liquidated, and
// cancelled are terminal.
type LoanStatus string

const (
	LoanStatusActive     LoanStatus = "active"
	LoanStatusRepaid     LoanStatus = "repaid"
	LoanStatusDefaulted  LoanStatus = "defaulted"
	LoanStatusLiquidated LoanStatus = "liquidated"
	LoanStatusCancelled  LoanStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s LoanStatus) Terminal() bool {
	switch s {
	case LoanStatusRepaid, LoanStatusDefaulted, LoanStatusLiquidated, LoanStatusCancelled:
		return true
	default:
		return false
	}
}

// ActiveLoan is a funded loan. RemainingAmount only decreases, via payments
// or liquidation. Version supports optimistic concurrency between the
// payment path and the liquidation path.
type ActiveLoan struct {
	ID                     string
	ApplicationID          string
	BorrowerID             string
	LenderID               string
	Principal              float64
	InterestRate           float64
	RemainingAmount        float64
	CollateralAsset        string
	CollateralUnits        float64 // pledged quantity of the collateral asset, fixed at origination
	CollateralValue        float64 // latest valuation of the pledged units
	CurrentCollateralRatio float64
	Status                 LoanStatus
	NextPaymentDate        time.Time
	CompletedPayments      int
	TotalPayments          int
	Version                int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
