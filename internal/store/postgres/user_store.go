package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// GetByID fetches one user profile, returning domain.ErrNotFound when absent.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT id, role, credit_score, total_borrowed, total_lent,
			default_count, avg_payment_time_days, income_stability, age
		FROM users WHERE id = $1`

	var u domain.User
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Role, &u.CreditScore, &u.TotalBorrowed, &u.TotalLent,
		&u.DefaultCount, &u.AvgPaymentTimeDays, &u.IncomeStability, &u.Age,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
