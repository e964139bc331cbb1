package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

// OfferStore implements domain.OfferStore using PostgreSQL.
type OfferStore struct {
	pool *pgxpool.Pool
}

// NewOfferStore creates a new OfferStore backed by the given connection pool.
func NewOfferStore(pool *pgxpool.Pool) *OfferStore {
	return &OfferStore{pool: pool}
}

const offerSelectCols = `id, application_id, lender_id, amount, interest_rate,
	terms, status, expires_at, created_at`

func scanOffer(row pgx.Row) (domain.LoanOffer, error) {
	var o domain.LoanOffer
	var status string

	err := row.Scan(
		&o.ID, &o.ApplicationID, &o.LenderID, &o.Amount, &o.InterestRate,
		&o.Terms, &status, &o.ExpiresAt, &o.CreatedAt,
	)
	if err != nil {
		return domain.LoanOffer{}, err
	}
	o.Status = domain.OfferStatus(status)
	return o, nil
}

// Create inserts a new offer.
func (s *OfferStore) Create(ctx context.Context, o domain.LoanOffer) error {
	const query = `
		INSERT INTO loan_offers (
			id, application_id, lender_id, amount, interest_rate,
			terms, status, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.ApplicationID, o.LenderID, o.Amount, o.InterestRate,
		o.Terms, string(o.Status), o.ExpiresAt, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create offer %s: %w", o.ID, err)
	}
	return nil
}

// GetByID fetches one offer, returning domain.ErrNotFound when absent.
func (s *OfferStore) GetByID(ctx context.Context, id string) (domain.LoanOffer, error) {
	query := "SELECT " + offerSelectCols + " FROM loan_offers WHERE id = $1"

	o, err := scanOffer(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LoanOffer{}, domain.ErrNotFound
		}
		return domain.LoanOffer{}, fmt.Errorf("postgres: get offer %s: %w", id, err)
	}
	return o, nil
}

// UpdateStatus transitions an offer's status.
func (s *OfferStore) UpdateStatus(ctx context.Context, id string, status domain.OfferStatus) error {
	const query = `UPDATE loan_offers SET status = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update offer status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByApplication returns all offers made against an application.
func (s *OfferStore) ListByApplication(ctx context.Context, applicationID string) ([]domain.LoanOffer, error) {
	query := "SELECT " + offerSelectCols + ` FROM loan_offers
		WHERE application_id = $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, applicationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list offers for %s: %w", applicationID, err)
	}
	defer rows.Close()

	var offers []domain.LoanOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// Compile-time interface check.
var _ domain.OfferStore = (*OfferStore)(nil)
