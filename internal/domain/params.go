package domain

// ProtocolParams is a point-in-time snapshot of the governance-controlled
// protocol constants. The core reads one snapshot at the start of each
// operation or cycle; parameter changes never retroactively affect checks
// already in flight.
type ProtocolParams struct {
	LiquidationThreshold float64 // minimum collateral ratio before liquidation
	LiquidationPenalty   float64 // fraction added to the liquidated amount
	PartialSeizureRate   float64 // fraction of collateral seized when it cannot cover the debt
	MaxLoanAmount        float64
	BaseInterestRate     float64
}

// DefaultProtocolParams returns the protocol constants used when governance
// has not published an override.
func DefaultProtocolParams() ProtocolParams {
	return ProtocolParams{
		LiquidationThreshold: 1.2,
		LiquidationPenalty:   0.05,
		PartialSeizureRate:   0.95,
		MaxLoanAmount:        2_000_000,
		BaseInterestRate:     0.06,
	}
}
