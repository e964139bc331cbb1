package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

const contentTypeJSONL = "application/x-ndjson"

// multipartThreshold switches uploads to the multipart path for large
// batches.
const multipartThreshold = 8 * 1024 * 1024

// BlobWriter uploads one archive object.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver ships settled loans and aged monitoring events to cold storage.
// Objects are grouped per record month, e.g. "loans/2026-08.jsonl".
type Archiver struct {
	loans     domain.LoanStore
	events    domain.EventStore
	blob      BlobWriter
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an archiver that ships records older than retention.
func NewArchiver(loans domain.LoanStore, events domain.EventStore, blob BlobWriter, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		loans:     loans,
		events:    events,
		blob:      blob,
		retention: retention,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run uploads one batch of aged records. It does not delete anything from
// the primary store; pruning stays a manual operation.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-a.retention)

	loanCount, err := a.archiveLoans(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: loans: %w", err)
	}

	eventCount, err := a.archiveEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: events: %w", err)
	}

	a.logger.Info("archive batch complete",
		slog.Int("loans", loanCount),
		slog.Int("events", eventCount),
		slog.Time("cutoff", cutoff))

	return nil
}

func (a *Archiver) archiveLoans(ctx context.Context, cutoff time.Time) (int, error) {
	loans, err := a.loans.ListSettledBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list settled loans: %w", err)
	}
	if len(loans) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]domain.ActiveLoan)
	for _, loan := range loans {
		m := monthKey(loan.UpdatedAt)
		byMonth[m] = append(byMonth[m], loan)
	}

	for month, batch := range byMonth {
		data, err := marshalJSONL(batch)
		if err != nil {
			return 0, fmt.Errorf("marshal loan batch %s: %w", month, err)
		}
		if err := a.upload(ctx, "loans/"+month+".jsonl", data); err != nil {
			return 0, err
		}
	}

	return len(loans), nil
}

func (a *Archiver) archiveEvents(ctx context.Context, cutoff time.Time) (int, error) {
	events, err := a.events.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]domain.MonitoringEvent)
	for _, ev := range events {
		m := monthKey(ev.CreatedAt)
		byMonth[m] = append(byMonth[m], ev)
	}

	for month, batch := range byMonth {
		data, err := marshalJSONL(batch)
		if err != nil {
			return 0, fmt.Errorf("marshal event batch %s: %w", month, err)
		}
		if err := a.upload(ctx, "events/"+month+".jsonl", data); err != nil {
			return 0, err
		}
	}

	return len(events), nil
}

func (a *Archiver) upload(ctx context.Context, path string, data []byte) error {
	if len(data) >= multipartThreshold {
		return a.blob.PutMultipart(ctx, path, bytes.NewReader(data), minPartSize)
	}
	return a.blob.Put(ctx, path, bytes.NewReader(data), contentTypeJSONL)
}

// marshalJSONL renders one JSON document per line.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
