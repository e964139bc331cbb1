package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

// LoanStore implements domain.LoanStore using PostgreSQL. Updates use
// optimistic concurrency: the row's version must match the caller's copy or
// the write is rejected with domain.ErrVersionConflict.
type LoanStore struct {
	pool *pgxpool.Pool
}

// NewLoanStore creates a new LoanStore backed by the given connection pool.
func NewLoanStore(pool *pgxpool.Pool) *LoanStore {
	return &LoanStore{pool: pool}
}

const loanSelectCols = `id, application_id, borrower_id, lender_id, principal,
	interest_rate, remaining_amount, collateral_asset, collateral_units,
	collateral_value, current_collateral_ratio, status, next_payment_date, completed_payments,
	total_payments, version, created_at, updated_at`

func scanLoan(row pgx.Row) (domain.ActiveLoan, error) {
	var l domain.ActiveLoan
	var status string

	err := row.Scan(
		&l.ID, &l.ApplicationID, &l.BorrowerID, &l.LenderID, &l.Principal,
		&l.InterestRate, &l.RemainingAmount, &l.CollateralAsset, &l.CollateralUnits,
		&l.CollateralValue, &l.CurrentCollateralRatio, &status, &l.NextPaymentDate, &l.CompletedPayments,
		&l.TotalPayments, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.ActiveLoan{}, err
	}
	l.Status = domain.LoanStatus(status)
	return l, nil
}

// Create inserts a new active loan.
func (s *LoanStore) Create(ctx context.Context, l domain.ActiveLoan) error {
	const query = `
		INSERT INTO active_loans (
			id, application_id, borrower_id, lender_id, principal,
			interest_rate, remaining_amount, collateral_asset, collateral_units,
			collateral_value, current_collateral_ratio, status, next_payment_date,
			completed_payments, total_payments, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15, $16, $17, $18
		)`

	_, err := s.pool.Exec(ctx, query,
		l.ID, l.ApplicationID, l.BorrowerID, l.LenderID, l.Principal,
		l.InterestRate, l.RemainingAmount, l.CollateralAsset, l.CollateralUnits,
		l.CollateralValue, l.CurrentCollateralRatio, string(l.Status), l.NextPaymentDate,
		l.CompletedPayments, l.TotalPayments, l.Version, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create loan %s: %w", l.ID, err)
	}
	return nil
}

// GetByID fetches one loan, returning domain.ErrNotFound when absent.
func (s *LoanStore) GetByID(ctx context.Context, id string) (domain.ActiveLoan, error) {
	query := "SELECT " + loanSelectCols + " FROM active_loans WHERE id = $1"

	l, err := scanLoan(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ActiveLoan{}, domain.ErrNotFound
		}
		return domain.ActiveLoan{}, fmt.Errorf("postgres: get loan %s: %w", id, err)
	}
	return l, nil
}

// Update replaces a loan's mutable fields when the stored version still
// matches l.Version, bumping the version by one. A mismatch reports
// domain.ErrVersionConflict; a missing row reports domain.ErrNotFound.
func (s *LoanStore) Update(ctx context.Context, l domain.ActiveLoan) error {
	const query = `
		UPDATE active_loans SET
			remaining_amount         = $3,
			collateral_value         = $4,
			current_collateral_ratio = $5,
			status                   = $6,
			next_payment_date        = $7,
			completed_payments       = $8,
			version                  = version + 1,
			updated_at               = $9
		WHERE id = $1 AND version = $2`

	tag, err := s.pool.Exec(ctx, query,
		l.ID, l.Version,
		l.RemainingAmount, l.CollateralValue, l.CurrentCollateralRatio,
		string(l.Status), l.NextPaymentDate, l.CompletedPayments, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update loan %s: %w", l.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM active_loans WHERE id = $1)", l.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check loan %s: %w", l.ID, err)
		}
		if exists {
			return domain.ErrVersionConflict
		}
		return domain.ErrNotFound
	}
	return nil
}

// ListByStatus returns all loans with the given status, oldest first so a
// monitoring cycle walks them in stable order.
func (s *LoanStore) ListByStatus(ctx context.Context, status domain.LoanStatus, opts domain.ListOpts) ([]domain.ActiveLoan, error) {
	query := "SELECT " + loanSelectCols + ` FROM active_loans
		WHERE status = $1 ORDER BY created_at ASC`
	args := []any{string(status)}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list loans by status %s: %w", status, err)
	}
	defer rows.Close()

	var loans []domain.ActiveLoan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// ListSettledBefore returns terminal loans last touched before the cutoff,
// for cold-storage archival.
func (s *LoanStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.ActiveLoan, error) {
	query := "SELECT " + loanSelectCols + ` FROM active_loans
		WHERE status IN ($1, $2, $3) AND updated_at < $4
		ORDER BY updated_at ASC`

	rows, err := s.pool.Query(ctx, query,
		string(domain.LoanStatusRepaid),
		string(domain.LoanStatusDefaulted),
		string(domain.LoanStatusLiquidated),
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled loans: %w", err)
	}
	defer rows.Close()

	var loans []domain.ActiveLoan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// Compile-time interface check.
var _ domain.LoanStore = (*LoanStore)(nil)
