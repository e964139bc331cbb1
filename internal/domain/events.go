package domain

import "time"

// Event kinds emitted by the core to the monitoring sink.
const (
	EventApplicationAssessed = "application.assessed"
	EventOfferCreated        = "offer.created"
	EventOfferAccepted       = "offer.accepted"
	EventPaymentProcessed    = "payment.processed"
	EventLoanRepaid          = "loan.repaid"
	EventLiquidationCheck    = "liquidation.check"
	EventLiquidationExecuted = "liquidation.executed"
	EventLiquidationFailed   = "liquidation.failed"
	EventCycleCompleted      = "liquidation.cycle_completed"
)

// MonitoringEvent is a single audit/monitoring record.
type MonitoringEvent struct {
	ID        int64
	Kind      string
	Detail    map[string]any
	CreatedAt time.Time
}
