package domain

import "time"

// ApplicationStatus tracks a loan application through its lifecycle.
type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "pending"
	ApplicationStatusApproved  ApplicationStatus = "approved"
	ApplicationStatusRejected  ApplicationStatus = "rejected"
	ApplicationStatusActive    ApplicationStatus = "active"
	ApplicationStatusRepaid    ApplicationStatus = "repaid"
	ApplicationStatusDefaulted ApplicationStatus = "defaulted"
)

// LoanApplication is a borrower's request for credit. Amount, rate, and
// duration are immutable after creation; only the status and the attached
// risk assessment change.
type LoanApplication struct {
	ID              string
	BorrowerID      string
	Amount          float64
	InterestRate    float64
	DurationDays    int
	CollateralRatio float64
	Purpose         string
	Status          ApplicationStatus
	RiskAssessment  *RiskAssessment
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
