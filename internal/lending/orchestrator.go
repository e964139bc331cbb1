// Package lending drives the loan lifecycle: application, risk assessment,
// offers, activation, and repayment.
package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/lendingcore/internal/domain"
	"github.com/alanyoungcy/lendingcore/internal/risk"
)

// paymentEpsilon absorbs float drift when a final installment should zero
// the balance exactly.
const paymentEpsilon = 1e-6

// SubmitApplicationParams carries the borrower's loan request.
type SubmitApplicationParams struct {
	BorrowerID      string
	Amount          float64
	InterestRate    float64
	DurationDays    int
	CollateralRatio float64
	Purpose         string
}

// Orchestrator owns the LoanApplication and ActiveLoan lifecycle. It scores
// applications at submission and hands settled positions to the liquidation
// engine through the shared stores.
type Orchestrator struct {
	apps     domain.ApplicationStore
	offers   domain.OfferStore
	loans    domain.LoanStore
	users    domain.UserStore
	scorer   *risk.Scorer
	feed     domain.PriceFeed
	transfer domain.TransferExecutor
	events   domain.EventRecorder
	asset    string
	logger   *slog.Logger
}

// NewOrchestrator wires the lifecycle orchestrator. asset names the
// collateral asset loans on this platform are denominated against.
func NewOrchestrator(
	apps domain.ApplicationStore,
	offers domain.OfferStore,
	loans domain.LoanStore,
	users domain.UserStore,
	scorer *risk.Scorer,
	feed domain.PriceFeed,
	transfer domain.TransferExecutor,
	events domain.EventRecorder,
	asset string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		apps:     apps,
		offers:   offers,
		loans:    loans,
		users:    users,
		scorer:   scorer,
		feed:     feed,
		transfer: transfer,
		events:   events,
		asset:    asset,
		logger:   logger.With(slog.String("component", "lending_orchestrator")),
	}
}

// SubmitApplication validates and scores a loan request. The application is
// persisted as APPROVED or REJECTED together with its assessment.
func (o *Orchestrator) SubmitApplication(ctx context.Context, p SubmitApplicationParams) (domain.LoanApplication, error) {
	if p.Amount <= 0 || p.DurationDays <= 0 || p.CollateralRatio <= 0 {
		return domain.LoanApplication{},
			fmt.Errorf("lending: amount, duration and collateral ratio must be positive: %w", domain.ErrValidation)
	}

	borrower, err := o.users.GetByID(ctx, p.BorrowerID)
	if err != nil {
		return domain.LoanApplication{}, fmt.Errorf("lending: load borrower %s: %w", p.BorrowerID, err)
	}

	market, err := o.feed.MarketConditions(ctx, o.asset)
	if err != nil {
		return domain.LoanApplication{}, fmt.Errorf("lending: market snapshot for %s: %w", o.asset, err)
	}

	assessment := o.scorer.Assess(domain.RiskFactors{
		CreditScore:     borrower.CreditScore,
		LoanAmount:      p.Amount,
		InterestRate:    p.InterestRate,
		DurationDays:    p.DurationDays,
		CollateralRatio: p.CollateralRatio,
		History:         borrower.History(),
		Market:          market,
		LoanPurpose:     p.Purpose,
		BorrowerAge:     borrower.Age,
		IncomeStability: borrower.IncomeStability,
	})

	status := domain.ApplicationStatusRejected
	if assessment.Approved {
		status = domain.ApplicationStatusApproved
	}

	now := time.Now()
	app := domain.LoanApplication{
		ID:              uuid.NewString(),
		BorrowerID:      p.BorrowerID,
		Amount:          p.Amount,
		InterestRate:    p.InterestRate,
		DurationDays:    p.DurationDays,
		CollateralRatio: p.CollateralRatio,
		Purpose:         p.Purpose,
		Status:          status,
		RiskAssessment:  &assessment,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.apps.Create(ctx, app); err != nil {
		return domain.LoanApplication{}, fmt.Errorf("lending: persist application: %w", err)
	}

	o.events.Record(ctx, domain.EventApplicationAssessed, map[string]any{
		"application_id": app.ID,
		"borrower_id":    app.BorrowerID,
		"risk_score":     assessment.RiskScore,
		"risk_level":     string(assessment.RiskLevel),
		"approved":       assessment.Approved,
	})
	o.logger.Info("application assessed",
		slog.String("application_id", app.ID),
		slog.Float64("risk_score", assessment.RiskScore),
		slog.Bool("approved", assessment.Approved))

	return app, nil
}

// CreateOffer lets a lender bid on an approved application.
func (o *Orchestrator) CreateOffer(ctx context.Context, lenderID, applicationID string, amount, rate float64, terms string, expiryHours int) (domain.LoanOffer, error) {
	if amount <= 0 || expiryHours <= 0 {
		return domain.LoanOffer{}, fmt.Errorf("lending: offer amount and expiry must be positive: %w", domain.ErrValidation)
	}

	app, err := o.apps.GetByID(ctx, applicationID)
	if err != nil {
		return domain.LoanOffer{}, fmt.Errorf("lending: load application %s: %w", applicationID, err)
	}
	if app.Status != domain.ApplicationStatusApproved {
		return domain.LoanOffer{},
			fmt.Errorf("lending: application %s is %s, offers require approval: %w", applicationID, app.Status, domain.ErrStateConflict)
	}

	now := time.Now()
	offer := domain.LoanOffer{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		LenderID:      lenderID,
		Amount:        amount,
		InterestRate:  rate,
		Terms:         terms,
		Status:        domain.OfferStatusPending,
		ExpiresAt:     now.Add(time.Duration(expiryHours) * time.Hour),
		CreatedAt:     now,
	}
	if err := o.offers.Create(ctx, offer); err != nil {
		return domain.LoanOffer{}, fmt.Errorf("lending: persist offer: %w", err)
	}

	o.events.Record(ctx, domain.EventOfferCreated, map[string]any{
		"offer_id":       offer.ID,
		"application_id": applicationID,
		"lender_id":      lenderID,
		"amount":         amount,
	})

	return offer, nil
}

// AcceptOffer turns a pending offer into an active loan. The lender's funds
// move to the borrower before any state commits.
func (o *Orchestrator) AcceptOffer(ctx context.Context, offerID, borrowerID string) (domain.ActiveLoan, error) {
	offer, err := o.offers.GetByID(ctx, offerID)
	if err != nil {
		return domain.ActiveLoan{}, fmt.Errorf("lending: load offer %s: %w", offerID, err)
	}
	if offer.Status != domain.OfferStatusPending {
		return domain.ActiveLoan{},
			fmt.Errorf("lending: offer %s is %s: %w", offerID, offer.Status, domain.ErrStateConflict)
	}

	now := time.Now()
	if offer.Expired(now) {
		if err := o.offers.UpdateStatus(ctx, offerID, domain.OfferStatusExpired); err != nil {
			o.logger.Warn("marking offer expired failed",
				slog.String("offer_id", offerID), slog.Any("error", err))
		}
		return domain.ActiveLoan{}, fmt.Errorf("lending: offer %s expired at %s: %w", offerID, offer.ExpiresAt, domain.ErrOfferExpired)
	}

	app, err := o.apps.GetByID(ctx, offer.ApplicationID)
	if err != nil {
		return domain.ActiveLoan{}, fmt.Errorf("lending: load application %s: %w", offer.ApplicationID, err)
	}
	if app.BorrowerID != borrowerID {
		return domain.ActiveLoan{},
			fmt.Errorf("lending: offer %s does not belong to borrower %s: %w", offerID, borrowerID, domain.ErrValidation)
	}

	market, err := o.feed.MarketConditions(ctx, o.asset)
	if err != nil {
		return domain.ActiveLoan{}, fmt.Errorf("lending: market snapshot for %s: %w", o.asset, err)
	}
	// The pledged quantity is fixed at origination; later cycles revalue
	// it at spot.
	collateralValue := offer.Amount * app.CollateralRatio
	spot := market.AssetPrice
	if spot <= 0 {
		spot = 1
	}

	receipt, err := o.transfer.ExecuteTransfer(ctx, offer.LenderID, borrowerID, offer.Amount)
	if err != nil {
		return domain.ActiveLoan{}, fmt.Errorf("lending: disburse offer %s: %w", offerID, err)
	}

	loan := domain.ActiveLoan{
		ID:                     uuid.NewString(),
		ApplicationID:          app.ID,
		BorrowerID:             borrowerID,
		LenderID:               offer.LenderID,
		Principal:              offer.Amount,
		InterestRate:           offer.InterestRate,
		RemainingAmount:        offer.Amount,
		CollateralAsset:        o.asset,
		CollateralUnits:        collateralValue / spot,
		CollateralValue:        collateralValue,
		CurrentCollateralRatio: app.CollateralRatio,
		Status:                 domain.LoanStatusActive,
		NextPaymentDate:        now.AddDate(0, 1, 0),
		TotalPayments:          totalPayments(app.DurationDays),
		Version:                1,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := o.loans.Create(ctx, loan); err != nil {
		return domain.ActiveLoan{}, fmt.Errorf("lending: persist loan: %w", err)
	}
	if err := o.offers.UpdateStatus(ctx, offerID, domain.OfferStatusAccepted); err != nil {
		return domain.ActiveLoan{}, fmt.Errorf("lending: accept offer %s: %w", offerID, err)
	}
	if err := o.apps.UpdateStatus(ctx, app.ID, domain.ApplicationStatusActive); err != nil {
		return domain.ActiveLoan{}, fmt.Errorf("lending: activate application %s: %w", app.ID, err)
	}

	o.events.Record(ctx, domain.EventOfferAccepted, map[string]any{
		"offer_id":        offerID,
		"loan_id":         loan.ID,
		"borrower_id":     borrowerID,
		"lender_id":       offer.LenderID,
		"principal":       loan.Principal,
		"transaction_ref": receipt.TransactionRef,
	})
	o.logger.Info("loan activated",
		slog.String("loan_id", loan.ID),
		slog.String("offer_id", offerID),
		slog.Float64("principal", loan.Principal))

	return loan, nil
}

// ProcessPayment applies one repayment to a loan. The interest share is the
// current monthly interest; the rest retires principal. A zero balance
// settles the loan as REPAID.
func (o *Orchestrator) ProcessPayment(ctx context.Context, loanID string, amount float64) (domain.ActiveLoan, error) {
	if amount <= 0 {
		return domain.ActiveLoan{}, fmt.Errorf("lending: payment amount must be positive: %w", domain.ErrValidation)
	}

	loan, err := o.loans.GetByID(ctx, loanID)
	if err != nil {
		return domain.ActiveLoan{}, fmt.Errorf("lending: load loan %s: %w", loanID, err)
	}
	if loan.Status != domain.LoanStatusActive {
		return domain.ActiveLoan{},
			fmt.Errorf("lending: loan %s is %s: %w", loanID, loan.Status, domain.ErrStateConflict)
	}

	monthlyInterest := loan.RemainingAmount * loan.InterestRate / 12
	principalPortion := amount - monthlyInterest
	if principalPortion < 0 {
		return domain.ActiveLoan{},
			fmt.Errorf("lending: payment %.2f does not cover monthly interest %.2f: %w", amount, monthlyInterest, domain.ErrValidation)
	}

	receipt, err := o.transfer.ExecuteTransfer(ctx, loan.BorrowerID, loan.LenderID, amount)
	if err != nil {
		return domain.ActiveLoan{}, fmt.Errorf("lending: payment transfer for loan %s: %w", loanID, err)
	}

	remaining := math.Max(0, loan.RemainingAmount-principalPortion)
	if remaining < paymentEpsilon {
		remaining = 0
	}

	loan.RemainingAmount = remaining
	loan.CompletedPayments++
	loan.UpdatedAt = time.Now()
	if remaining == 0 {
		loan.Status = domain.LoanStatusRepaid
	} else {
		loan.NextPaymentDate = loan.NextPaymentDate.AddDate(0, 1, 0)
	}

	if err := o.loans.Update(ctx, loan); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return domain.ActiveLoan{}, fmt.Errorf("lending: loan %s changed concurrently: %w", loanID, err)
		}
		return domain.ActiveLoan{}, fmt.Errorf("lending: persist payment for loan %s: %w", loanID, err)
	}

	detail := map[string]any{
		"loan_id":            loanID,
		"amount":             amount,
		"interest_portion":   monthlyInterest,
		"principal_portion":  principalPortion,
		"remaining":          remaining,
		"completed_payments": loan.CompletedPayments,
		"transaction_ref":    receipt.TransactionRef,
	}
	o.events.Record(ctx, domain.EventPaymentProcessed, detail)
	if loan.Status == domain.LoanStatusRepaid {
		o.events.Record(ctx, domain.EventLoanRepaid, map[string]any{"loan_id": loanID})
		o.logger.Info("loan repaid", slog.String("loan_id", loanID))
	}

	return loan, nil
}

// ListApplications returns a borrower's applications, newest first per the
// store's ordering.
func (o *Orchestrator) ListApplications(ctx context.Context, borrowerID string, opts domain.ListOpts) ([]domain.LoanApplication, error) {
	apps, err := o.apps.ListByBorrower(ctx, borrowerID, opts)
	if err != nil {
		return nil, fmt.Errorf("lending: list applications for %s: %w", borrowerID, err)
	}
	return apps, nil
}

// totalPayments spreads a duration over monthly installments, always at
// least one.
func totalPayments(durationDays int) int {
	n := int(math.Ceil(float64(durationDays) / 30))
	if n < 1 {
		n = 1
	}
	return n
}
