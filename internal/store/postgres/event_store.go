package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

// EventStore implements domain.EventStore as an append-only monitoring log.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Log appends one monitoring event.
func (s *EventStore) Log(ctx context.Context, kind string, detail map[string]any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: encode event detail: %w", err)
	}

	const query = `INSERT INTO monitoring_events (kind, detail) VALUES ($1, $2)`
	if _, err := s.pool.Exec(ctx, query, kind, raw); err != nil {
		return fmt.Errorf("postgres: log event %s: %w", kind, err)
	}
	return nil
}

// List returns events newest first within the optional time window.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.MonitoringEvent, error) {
	query := `SELECT id, kind, detail, created_at FROM monitoring_events`
	var args []any
	where := ""

	if opts.Since != nil {
		args = append(args, *opts.Since)
		where = fmt.Sprintf(" WHERE created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		if where == "" {
			where = fmt.Sprintf(" WHERE created_at < $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND created_at < $%d", len(args))
		}
	}
	query += where + " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	return s.queryEvents(ctx, query, args...)
}

// ListBefore returns events older than the cutoff, oldest first, for
// archival.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.MonitoringEvent, error) {
	const query = `
		SELECT id, kind, detail, created_at FROM monitoring_events
		WHERE created_at < $1 ORDER BY created_at ASC`
	return s.queryEvents(ctx, query, before)
}

func (s *EventStore) queryEvents(ctx context.Context, query string, args ...any) ([]domain.MonitoringEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]domain.MonitoringEvent, error) {
	var events []domain.MonitoringEvent
	for rows.Next() {
		var e domain.MonitoringEvent
		var raw []byte
		if err := rows.Scan(&e.ID, &e.Kind, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: decode event detail: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)
