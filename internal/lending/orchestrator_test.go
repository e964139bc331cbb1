package lending

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/lendingcore/internal/domain"
	"github.com/alanyoungcy/lendingcore/internal/risk"
)

type memAppStore struct {
	apps map[string]domain.LoanApplication
}

func (s *memAppStore) Create(_ context.Context, app domain.LoanApplication) error {
	s.apps[app.ID] = app
	return nil
}

func (s *memAppStore) GetByID(_ context.Context, id string) (domain.LoanApplication, error) {
	app, ok := s.apps[id]
	if !ok {
		return domain.LoanApplication{}, domain.ErrNotFound
	}
	return app, nil
}

func (s *memAppStore) UpdateStatus(_ context.Context, id string, status domain.ApplicationStatus) error {
	app, ok := s.apps[id]
	if !ok {
		return domain.ErrNotFound
	}
	app.Status = status
	s.apps[id] = app
	return nil
}

func (s *memAppStore) ListByBorrower(_ context.Context, borrowerID string, _ domain.ListOpts) ([]domain.LoanApplication, error) {
	var out []domain.LoanApplication
	for _, a := range s.apps {
		if a.BorrowerID == borrowerID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memOfferStore struct {
	offers map[string]domain.LoanOffer
}

func (s *memOfferStore) Create(_ context.Context, offer domain.LoanOffer) error {
	s.offers[offer.ID] = offer
	return nil
}

func (s *memOfferStore) GetByID(_ context.Context, id string) (domain.LoanOffer, error) {
	offer, ok := s.offers[id]
	if !ok {
		return domain.LoanOffer{}, domain.ErrNotFound
	}
	return offer, nil
}

func (s *memOfferStore) UpdateStatus(_ context.Context, id string, status domain.OfferStatus) error {
	offer, ok := s.offers[id]
	if !ok {
		return domain.ErrNotFound
	}
	offer.Status = status
	s.offers[id] = offer
	return nil
}

func (s *memOfferStore) ListByApplication(_ context.Context, applicationID string) ([]domain.LoanOffer, error) {
	var out []domain.LoanOffer
	for _, o := range s.offers {
		if o.ApplicationID == applicationID {
			out = append(out, o)
		}
	}
	return out, nil
}

type memLoanStore struct {
	loans map[string]domain.ActiveLoan
}

func (s *memLoanStore) Create(_ context.Context, loan domain.ActiveLoan) error {
	s.loans[loan.ID] = loan
	return nil
}

func (s *memLoanStore) GetByID(_ context.Context, id string) (domain.ActiveLoan, error) {
	loan, ok := s.loans[id]
	if !ok {
		return domain.ActiveLoan{}, domain.ErrNotFound
	}
	return loan, nil
}

func (s *memLoanStore) Update(_ context.Context, loan domain.ActiveLoan) error {
	stored, ok := s.loans[loan.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != loan.Version {
		return domain.ErrVersionConflict
	}
	loan.Version++
	s.loans[loan.ID] = loan
	return nil
}

func (s *memLoanStore) ListByStatus(_ context.Context, status domain.LoanStatus, _ domain.ListOpts) ([]domain.ActiveLoan, error) {
	var out []domain.ActiveLoan
	for _, l := range s.loans {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memLoanStore) ListSettledBefore(context.Context, time.Time) ([]domain.ActiveLoan, error) {
	return nil, nil
}

type memUserStore struct {
	users map[string]domain.User
}

func (s *memUserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

type staticFeed struct {
	market domain.MarketConditions
}

func (f staticFeed) CollateralValue(context.Context, domain.ActiveLoan) (float64, error) {
	return 0, nil
}

func (f staticFeed) MarketConditions(context.Context, string) (domain.MarketConditions, error) {
	return f.market, nil
}

type transferSpy struct {
	err   error
	calls int
}

func (t *transferSpy) ExecuteTransfer(context.Context, string, string, float64) (domain.TransferReceipt, error) {
	t.calls++
	if t.err != nil {
		return domain.TransferReceipt{}, t.err
	}
	return domain.TransferReceipt{TransactionRef: "tx-1"}, nil
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, string, map[string]any) {}

type fixture struct {
	orch     *Orchestrator
	apps     *memAppStore
	offers   *memOfferStore
	loans    *memLoanStore
	transfer *transferSpy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	apps := &memAppStore{apps: make(map[string]domain.LoanApplication)}
	offers := &memOfferStore{offers: make(map[string]domain.LoanOffer)}
	loans := &memLoanStore{loans: make(map[string]domain.ActiveLoan)}
	users := &memUserStore{users: map[string]domain.User{
		"borrower-1": {
			ID:              "borrower-1",
			CreditScore:     800,
			TotalBorrowed:   50_000,
			IncomeStability: 0.9,
			Age:             35,
		},
		"deadbeat-1": {
			ID:           "deadbeat-1",
			CreditScore:  250,
			DefaultCount: 4,
			Age:          35,
		},
	}}
	transfer := &transferSpy{}
	feed := staticFeed{market: domain.MarketConditions{AssetPrice: 100, Volatility: 0.2, LendingRate: 0.06}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := NewOrchestrator(apps, offers, loans, users, risk.NewScorer(), feed, transfer, noopRecorder{}, "USDC", logger)
	return &fixture{orch: orch, apps: apps, offers: offers, loans: loans, transfer: transfer}
}

func goodApplication() SubmitApplicationParams {
	return SubmitApplicationParams{
		BorrowerID:      "borrower-1",
		Amount:          10_000,
		InterestRate:    0.08,
		DurationDays:    180,
		CollateralRatio: 2.0,
		Purpose:         "home_improvement",
	}
}

// activate walks a fresh application through offer creation and acceptance.
func (f *fixture) activate(t *testing.T, p SubmitApplicationParams) domain.ActiveLoan {
	t.Helper()
	ctx := context.Background()

	app, err := f.orch.SubmitApplication(ctx, p)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	offer, err := f.orch.CreateOffer(ctx, "lender-1", app.ID, p.Amount, p.InterestRate, "standard", 24)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	loan, err := f.orch.AcceptOffer(ctx, offer.ID, p.BorrowerID)
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	return loan
}

func TestSubmitApplicationApprovesStrongBorrower(t *testing.T) {
	fx := newFixture(t)

	app, err := fx.orch.SubmitApplication(context.Background(), goodApplication())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.Status != domain.ApplicationStatusApproved {
		t.Fatalf("status = %s, want %s", app.Status, domain.ApplicationStatusApproved)
	}
	if app.RiskAssessment == nil || !app.RiskAssessment.Approved {
		t.Fatal("expected an attached approving assessment")
	}
	if _, err := fx.apps.GetByID(context.Background(), app.ID); err != nil {
		t.Fatalf("application not persisted: %v", err)
	}
}

func TestSubmitApplicationRejectsWeakBorrower(t *testing.T) {
	fx := newFixture(t)
	p := goodApplication()
	p.BorrowerID = "deadbeat-1"

	app, err := fx.orch.SubmitApplication(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.Status != domain.ApplicationStatusRejected {
		t.Fatalf("status = %s, want %s", app.Status, domain.ApplicationStatusRejected)
	}
}

func TestSubmitApplicationValidatesInputs(t *testing.T) {
	fx := newFixture(t)
	tests := []struct {
		name   string
		mutate func(*SubmitApplicationParams)
	}{
		{"zero amount", func(p *SubmitApplicationParams) { p.Amount = 0 }},
		{"negative duration", func(p *SubmitApplicationParams) { p.DurationDays = -1 }},
		{"zero collateral ratio", func(p *SubmitApplicationParams) { p.CollateralRatio = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := goodApplication()
			tc.mutate(&p)
			if _, err := fx.orch.SubmitApplication(context.Background(), p); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateOfferRequiresApprovedApplication(t *testing.T) {
	fx := newFixture(t)
	p := goodApplication()
	p.BorrowerID = "deadbeat-1"

	app, err := fx.orch.SubmitApplication(context.Background(), p)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = fx.orch.CreateOffer(context.Background(), "lender-1", app.ID, 1000, 0.08, "standard", 24)
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
}

func TestAcceptOfferActivatesLoan(t *testing.T) {
	fx := newFixture(t)
	loan := fx.activate(t, goodApplication())

	if loan.Status != domain.LoanStatusActive {
		t.Fatalf("loan status = %s, want %s", loan.Status, domain.LoanStatusActive)
	}
	if loan.TotalPayments != 6 {
		t.Fatalf("total payments = %d, want 6 for 180 days", loan.TotalPayments)
	}
	if loan.RemainingAmount != 10_000 {
		t.Fatalf("remaining = %.2f, want full principal", loan.RemainingAmount)
	}
	if got := time.Until(loan.NextPaymentDate); got < 27*24*time.Hour || got > 32*24*time.Hour {
		t.Fatalf("next payment due in %s, want about one month", got)
	}

	app, _ := fx.apps.GetByID(context.Background(), loan.ApplicationID)
	if app.Status != domain.ApplicationStatusActive {
		t.Fatalf("application status = %s, want %s", app.Status, domain.ApplicationStatusActive)
	}
	if fx.transfer.calls != 1 {
		t.Fatalf("expected one disbursement transfer, got %d", fx.transfer.calls)
	}
}

func TestAcceptOfferRejectsExpired(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	app, err := fx.orch.SubmitApplication(ctx, goodApplication())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	offer, err := fx.orch.CreateOffer(ctx, "lender-1", app.ID, 10_000, 0.08, "standard", 24)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	// Force the offer into the past.
	stored := fx.offers.offers[offer.ID]
	stored.ExpiresAt = time.Now().Add(-time.Hour)
	fx.offers.offers[offer.ID] = stored

	_, err = fx.orch.AcceptOffer(ctx, offer.ID, "borrower-1")
	if !errors.Is(err, domain.ErrOfferExpired) {
		t.Fatalf("expected ErrOfferExpired, got %v", err)
	}
	if got := fx.offers.offers[offer.ID].Status; got != domain.OfferStatusExpired {
		t.Fatalf("offer status = %s, want %s", got, domain.OfferStatusExpired)
	}
}

func TestAcceptOfferRejectsWrongBorrower(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	app, err := fx.orch.SubmitApplication(ctx, goodApplication())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	offer, err := fx.orch.CreateOffer(ctx, "lender-1", app.ID, 10_000, 0.08, "standard", 24)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	if _, err := fx.orch.AcceptOffer(ctx, offer.ID, "deadbeat-1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for borrower mismatch, got %v", err)
	}
}

func TestProcessPaymentReducesBalance(t *testing.T) {
	fx := newFixture(t)
	loan := fx.activate(t, goodApplication())

	monthlyInterest := loan.RemainingAmount * loan.InterestRate / 12
	updated, err := fx.orch.ProcessPayment(context.Background(), loan.ID, monthlyInterest+1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(updated.RemainingAmount-9000) > 1e-6 {
		t.Fatalf("remaining = %.2f, want 9000", updated.RemainingAmount)
	}
	if updated.CompletedPayments != 1 {
		t.Fatalf("completed payments = %d, want 1", updated.CompletedPayments)
	}
	if !updated.NextPaymentDate.After(loan.NextPaymentDate) {
		t.Fatal("next payment date did not advance")
	}
}

func TestProcessPaymentRoundTripRepaysLoan(t *testing.T) {
	fx := newFixture(t)
	p := goodApplication()
	p.Amount = 12_000
	p.DurationDays = 360
	p.InterestRate = 0.12
	loan := fx.activate(t, p)

	installment := loan.Principal / float64(loan.TotalPayments)
	var current domain.ActiveLoan
	for i := 0; i < loan.TotalPayments; i++ {
		fresh, err := fx.loans.GetByID(context.Background(), loan.ID)
		if err != nil {
			t.Fatalf("load loan: %v", err)
		}
		interest := fresh.RemainingAmount * fresh.InterestRate / 12
		current, err = fx.orch.ProcessPayment(context.Background(), loan.ID, installment+interest)
		if err != nil {
			t.Fatalf("payment %d: %v", i+1, err)
		}
	}

	if current.RemainingAmount != 0 {
		t.Fatalf("remaining = %v, want exactly 0", current.RemainingAmount)
	}
	if current.Status != domain.LoanStatusRepaid {
		t.Fatalf("status = %s, want %s", current.Status, domain.LoanStatusRepaid)
	}
}

func TestProcessPaymentRejectsInterestShortfall(t *testing.T) {
	fx := newFixture(t)
	loan := fx.activate(t, goodApplication())

	// Monthly interest is about 66.67; one unit is nowhere near enough.
	if _, err := fx.orch.ProcessPayment(context.Background(), loan.ID, 1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestProcessPaymentOnSettledLoanConflicts(t *testing.T) {
	fx := newFixture(t)
	loan := fx.activate(t, goodApplication())

	stored := fx.loans.loans[loan.ID]
	stored.Status = domain.LoanStatusLiquidated
	fx.loans.loans[loan.ID] = stored

	if _, err := fx.orch.ProcessPayment(context.Background(), loan.ID, 1000); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
}
