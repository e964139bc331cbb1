package liquidation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/lendingcore/internal/domain"
	"github.com/alanyoungcy/lendingcore/internal/monitor"
)

type mockLoanStore struct {
	mu    sync.Mutex
	loans map[string]domain.ActiveLoan

	updateErr error
}

func newMockLoanStore(loans ...domain.ActiveLoan) *mockLoanStore {
	s := &mockLoanStore{loans: make(map[string]domain.ActiveLoan)}
	for _, l := range loans {
		s.loans[l.ID] = l
	}
	return s
}

func (s *mockLoanStore) Create(_ context.Context, loan domain.ActiveLoan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[loan.ID] = loan
	return nil
}

func (s *mockLoanStore) GetByID(_ context.Context, id string) (domain.ActiveLoan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return domain.ActiveLoan{}, domain.ErrNotFound
	}
	return loan, nil
}

func (s *mockLoanStore) Update(_ context.Context, loan domain.ActiveLoan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.loans[loan.ID] = loan
	return nil
}

func (s *mockLoanStore) ListByStatus(_ context.Context, status domain.LoanStatus, _ domain.ListOpts) ([]domain.ActiveLoan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ActiveLoan
	for _, l := range s.loans {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *mockLoanStore) ListSettledBefore(context.Context, time.Time) ([]domain.ActiveLoan, error) {
	return nil, nil
}

type mockFeed struct {
	CollateralValueFn func(ctx context.Context, loan domain.ActiveLoan) (float64, error)
}

func (m *mockFeed) CollateralValue(ctx context.Context, loan domain.ActiveLoan) (float64, error) {
	return m.CollateralValueFn(ctx, loan)
}

func (m *mockFeed) MarketConditions(context.Context, string) (domain.MarketConditions, error) {
	return domain.MarketConditions{}, nil
}

type mockTransfer struct {
	ExecuteTransferFn func(ctx context.Context, from, to string, amount float64) (domain.TransferReceipt, error)
	calls             int
}

func (m *mockTransfer) ExecuteTransfer(ctx context.Context, from, to string, amount float64) (domain.TransferReceipt, error) {
	m.calls++
	return m.ExecuteTransferFn(ctx, from, to, amount)
}

type recorderSpy struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recorderSpy) Record(_ context.Context, kind string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *recorderSpy) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type noopLock struct{ err error }

func (l noopLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

type staticParams struct{ p domain.ProtocolParams }

func (s staticParams) Current(context.Context) domain.ProtocolParams { return s.p }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type engineFixture struct {
	engine   *Engine
	loans    *mockLoanStore
	transfer *mockTransfer
	recorder *recorderSpy
}

func newFixture(t *testing.T, store *mockLoanStore, collateral func(domain.ActiveLoan) float64, lockErr error) *engineFixture {
	t.Helper()
	feed := &mockFeed{
		CollateralValueFn: func(_ context.Context, loan domain.ActiveLoan) (float64, error) {
			return collateral(loan), nil
		},
	}
	params := staticParams{domain.DefaultProtocolParams()}
	transfer := &mockTransfer{
		ExecuteTransferFn: func(context.Context, string, string, float64) (domain.TransferReceipt, error) {
			return domain.TransferReceipt{TransactionRef: "tx-1"}, nil
		},
	}
	recorder := &recorderSpy{}
	mon := monitor.NewCollateralMonitor(feed, params, testLogger())
	engine := NewEngine(store, mon, feed, transfer, recorder, noopLock{err: lockErr}, params, time.Minute, testLogger())
	return &engineFixture{engine: engine, loans: store, transfer: transfer, recorder: recorder}
}

func activeLoan(id string, debt float64) domain.ActiveLoan {
	return domain.ActiveLoan{
		ID:              id,
		BorrowerID:      "borrower-1",
		LenderID:        "lender-1",
		Principal:       debt,
		RemainingAmount: debt,
		Status:          domain.LoanStatusActive,
	}
}

func TestRunCycleLiquidatesUndercollateralizedLoan(t *testing.T) {
	store := newMockLoanStore(activeLoan("loan-1", 1000))
	fx := newFixture(t, store, func(domain.ActiveLoan) float64 { return 900 }, nil)

	checks, err := fx.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(checks) != 1 || !checks[0].NeedsLiquidation {
		t.Fatalf("expected one flagged check, got %+v", checks)
	}

	loan, _ := store.GetByID(context.Background(), "loan-1")
	if loan.Status != domain.LoanStatusLiquidated {
		t.Fatalf("loan status = %s, want %s", loan.Status, domain.LoanStatusLiquidated)
	}
	if fx.recorder.count(domain.EventLiquidationExecuted) != 1 {
		t.Fatal("expected one liquidation.executed event")
	}
	if fx.recorder.count(domain.EventCycleCompleted) != 1 {
		t.Fatal("expected one cycle_completed event")
	}
}

func TestRunCycleLeavesHealthyLoansActive(t *testing.T) {
	store := newMockLoanStore(activeLoan("loan-1", 1000))
	fx := newFixture(t, store, func(domain.ActiveLoan) float64 { return 2000 }, nil)

	if _, err := fx.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loan, _ := store.GetByID(context.Background(), "loan-1")
	if loan.Status != domain.LoanStatusActive {
		t.Fatalf("loan status = %s, want %s", loan.Status, domain.LoanStatusActive)
	}
	if loan.CurrentCollateralRatio != 2.0 {
		t.Fatalf("ratio not refreshed: %.2f", loan.CurrentCollateralRatio)
	}
	if fx.transfer.calls != 0 {
		t.Fatalf("no transfer expected, got %d", fx.transfer.calls)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	store := newMockLoanStore(activeLoan("loan-1", 1000))
	fx := newFixture(t, store, func(domain.ActiveLoan) float64 { return 900 }, domain.ErrLockHeld)

	_, err := fx.engine.RunCycle(context.Background())
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if fx.transfer.calls != 0 {
		t.Fatal("no liquidation must run while another cycle holds the lock")
	}
}

func TestLiquidateFullSeizesTotalDue(t *testing.T) {
	// Shortfall 166.67 plus a 5% penalty gives a total due of 175, which
	// the 900 of collateral fully covers.
	store := newMockLoanStore(activeLoan("loan-1", 1000))
	fx := newFixture(t, store, func(domain.ActiveLoan) float64 { return 900 }, nil)

	amount := 1000 - 1000/1.2
	result, err := fx.engine.Liquidate(context.Background(), "loan-1", amount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.Partial {
		t.Fatalf("expected full liquidation, got %+v", result)
	}
	if math.Abs(result.LiquidatedAmount-amount*1.05) > 1e-9 {
		t.Fatalf("seized = %.4f, want %.4f", result.LiquidatedAmount, amount*1.05)
	}
	if math.Abs(result.RemainingDebt-(1000-amount*1.05)) > 1e-9 {
		t.Fatalf("remaining debt = %.4f, want %.4f", result.RemainingDebt, 1000-amount*1.05)
	}

	loan, _ := store.GetByID(context.Background(), "loan-1")
	if loan.RemainingAmount != 0 {
		t.Fatalf("loan remaining = %.4f, want 0", loan.RemainingAmount)
	}
	if loan.Status != domain.LoanStatusLiquidated {
		t.Fatalf("loan status = %s, want %s", loan.Status, domain.LoanStatusLiquidated)
	}
}

func TestLiquidatePartialSeizesShareOfCollateral(t *testing.T) {
	store := newMockLoanStore(activeLoan("loan-1", 1000))
	fx := newFixture(t, store, func(domain.ActiveLoan) float64 { return 100 }, nil)

	result, err := fx.engine.Liquidate(context.Background(), "loan-1", 900)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || !result.Partial {
		t.Fatalf("expected partial liquidation, got %+v", result)
	}
	if math.Abs(result.LiquidatedAmount-95) > 1e-9 {
		t.Fatalf("seized = %.4f, want 95", result.LiquidatedAmount)
	}

	loan, _ := store.GetByID(context.Background(), "loan-1")
	if math.Abs(loan.RemainingAmount-905) > 1e-9 {
		t.Fatalf("loan remaining = %.4f, want 905", loan.RemainingAmount)
	}
	if loan.Status != domain.LoanStatusLiquidated {
		t.Fatalf("loan status = %s, want %s", loan.Status, domain.LoanStatusLiquidated)
	}
}

func TestLiquidateAlreadySettledLoanConflicts(t *testing.T) {
	loan := activeLoan("loan-1", 0)
	loan.Status = domain.LoanStatusLiquidated
	store := newMockLoanStore(loan)
	fx := newFixture(t, store, func(domain.ActiveLoan) float64 { return 900 }, nil)

	_, err := fx.engine.Liquidate(context.Background(), "loan-1", 100)
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
	if fx.transfer.calls != 0 {
		t.Fatal("settled loan must never be seized again")
	}
}

func TestLiquidateTransferFailureLeavesLoanActive(t *testing.T) {
	store := newMockLoanStore(activeLoan("loan-1", 1000))
	fx := newFixture(t, store, func(domain.ActiveLoan) float64 { return 900 }, nil)
	fx.transfer.ExecuteTransferFn = func(context.Context, string, string, float64) (domain.TransferReceipt, error) {
		return domain.TransferReceipt{}, domain.ErrTransferFailed
	}

	result, err := fx.engine.Liquidate(context.Background(), "loan-1", 166.67)
	if err != nil {
		t.Fatalf("transfer failure must not propagate as an error: %v", err)
	}
	if result.Success {
		t.Fatal("expected unsuccessful result")
	}
	if result.RemainingDebt != 1000 {
		t.Fatalf("remaining debt = %.2f, want unchanged 1000", result.RemainingDebt)
	}

	loan, _ := store.GetByID(context.Background(), "loan-1")
	if loan.Status != domain.LoanStatusActive {
		t.Fatalf("loan status = %s, want %s for retry", loan.Status, domain.LoanStatusActive)
	}
	if loan.RemainingAmount != 1000 {
		t.Fatalf("loan remaining mutated to %.2f", loan.RemainingAmount)
	}
	if fx.recorder.count(domain.EventLiquidationFailed) != 1 {
		t.Fatal("expected one liquidation.failed event")
	}
}
