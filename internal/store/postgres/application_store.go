package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

// ApplicationStore implements domain.ApplicationStore using PostgreSQL.
type ApplicationStore struct {
	pool *pgxpool.Pool
}

// NewApplicationStore creates a new ApplicationStore backed by the given
// connection pool.
func NewApplicationStore(pool *pgxpool.Pool) *ApplicationStore {
	return &ApplicationStore{pool: pool}
}

const applicationSelectCols = `id, borrower_id, amount, interest_rate, duration_days,
	collateral_ratio, purpose, status, risk_assessment, created_at, updated_at`

func scanApplication(row pgx.Row) (domain.LoanApplication, error) {
	var a domain.LoanApplication
	var status string
	var assessment []byte

	err := row.Scan(
		&a.ID, &a.BorrowerID, &a.Amount, &a.InterestRate, &a.DurationDays,
		&a.CollateralRatio, &a.Purpose, &status, &assessment,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.LoanApplication{}, err
	}
	a.Status = domain.ApplicationStatus(status)
	if len(assessment) > 0 {
		var ra domain.RiskAssessment
		if err := json.Unmarshal(assessment, &ra); err != nil {
			return domain.LoanApplication{}, fmt.Errorf("decode risk assessment: %w", err)
		}
		a.RiskAssessment = &ra
	}
	return a, nil
}

// Create inserts a new application.
func (s *ApplicationStore) Create(ctx context.Context, a domain.LoanApplication) error {
	var assessment []byte
	if a.RiskAssessment != nil {
		var err error
		assessment, err = json.Marshal(a.RiskAssessment)
		if err != nil {
			return fmt.Errorf("postgres: encode risk assessment: %w", err)
		}
	}

	const query = `
		INSERT INTO loan_applications (
			id, borrower_id, amount, interest_rate, duration_days,
			collateral_ratio, purpose, status, risk_assessment,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.BorrowerID, a.Amount, a.InterestRate, a.DurationDays,
		a.CollateralRatio, a.Purpose, string(a.Status), assessment,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create application %s: %w", a.ID, err)
	}
	return nil
}

// GetByID fetches one application, returning domain.ErrNotFound when absent.
func (s *ApplicationStore) GetByID(ctx context.Context, id string) (domain.LoanApplication, error) {
	query := "SELECT " + applicationSelectCols + " FROM loan_applications WHERE id = $1"

	a, err := scanApplication(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LoanApplication{}, domain.ErrNotFound
		}
		return domain.LoanApplication{}, fmt.Errorf("postgres: get application %s: %w", id, err)
	}
	return a, nil
}

// UpdateStatus transitions an application's status.
func (s *ApplicationStore) UpdateStatus(ctx context.Context, id string, status domain.ApplicationStatus) error {
	const query = `UPDATE loan_applications SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update application status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByBorrower returns a borrower's applications, newest first.
func (s *ApplicationStore) ListByBorrower(ctx context.Context, borrowerID string, opts domain.ListOpts) ([]domain.LoanApplication, error) {
	query := "SELECT " + applicationSelectCols + ` FROM loan_applications
		WHERE borrower_id = $1 ORDER BY created_at DESC`
	args := []any{borrowerID}

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
		return nil, fmt.Errorf("postgres: list applications for %s: %w", borrowerID, err)
	}
	defer rows.Close()

	var apps []domain.LoanApplication
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// Compile-time interface check.
var _ domain.ApplicationStore = (*ApplicationStore)(nil)
