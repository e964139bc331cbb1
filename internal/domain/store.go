package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ApplicationStore persists loan applications.
type ApplicationStore interface {
	Create(ctx context.Context, app LoanApplication) error
	GetByID(ctx context.Context, id string) (LoanApplication, error)
	UpdateStatus(ctx context.Context, id string, status ApplicationStatus) error
	ListByBorrower(ctx context.Context, borrowerID string, opts ListOpts) ([]LoanApplication, error)
}

// LoanStore persists active loans. Update performs an optimistic version
// check and returns ErrVersionConflict when the stored version differs.
type LoanStore interface {
	Create(ctx context.Context, loan ActiveLoan) error
	GetByID(ctx context.Context, id string) (ActiveLoan, error)
	Update(ctx context.Context, loan ActiveLoan) error
	ListByStatus(ctx context.Context, status LoanStatus, opts ListOpts) ([]ActiveLoan, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]ActiveLoan, error)
}

// OfferStore persists loan offers.
type OfferStore interface {
	Create(ctx context.Context, offer LoanOffer) error
	GetByID(ctx context.Context, id string) (LoanOffer, error)
	UpdateStatus(ctx context.Context, id string, status OfferStatus) error
	ListByApplication(ctx context.Context, applicationID string) ([]LoanOffer, error)
}

// UserStore reads borrower/lender profiles.
type UserStore interface {
	GetByID(ctx context.Context, id string) (User, error)
}

// EventStore persists the append-only monitoring log.
type EventStore interface {
	Log(ctx context.Context, kind string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]MonitoringEvent, error)
	ListBefore(ctx context.Context, before time.Time) ([]MonitoringEvent, error)
}

// PriceFeed supplies the current market value of a loan's collateral.
type PriceFeed interface {
	CollateralValue(ctx context.Context, loan ActiveLoan) (float64, error)
	MarketConditions(ctx context.Context, asset string) (MarketConditions, error)
}

// TransferReceipt acknowledges an executed transfer.
type TransferReceipt struct {
	TransactionRef string
}

// TransferExecutor moves funds between platform accounts. Implementations
// live outside the core (treasury/custody service).
type TransferExecutor interface {
	ExecuteTransfer(ctx context.Context, from, to string, amount float64) (TransferReceipt, error)
}

// EventRecorder is the fire-and-forget monitoring sink. Implementations
// must never let a recording failure abort the calling operation.
type EventRecorder interface {
	Record(ctx context.Context, kind string, detail map[string]any)
}

// ParamsProvider supplies the current governance parameter snapshot.
type ParamsProvider interface {
	Current(ctx context.Context) ProtocolParams
}

// LockManager provides distributed locking for cycle serialization.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// CollateralPriceCache caches per-asset collateral prices.
type CollateralPriceCache interface {
	SetPrice(ctx context.Context, asset string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (float64, time.Time, error)
	GetPrices(ctx context.Context, assets []string) (map[string]float64, error)
}
