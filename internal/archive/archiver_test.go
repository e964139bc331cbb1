package archive

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

type stubLoanStore struct {
	settled []domain.ActiveLoan
}

func (s *stubLoanStore) Create(context.Context, domain.ActiveLoan) error { return nil }
func (s *stubLoanStore) GetByID(context.Context, string) (domain.ActiveLoan, error) {
	return domain.ActiveLoan{}, domain.ErrNotFound
}
func (s *stubLoanStore) Update(context.Context, domain.ActiveLoan) error { return nil }
func (s *stubLoanStore) ListByStatus(context.Context, domain.LoanStatus, domain.ListOpts) ([]domain.ActiveLoan, error) {
	return nil, nil
}
func (s *stubLoanStore) ListSettledBefore(context.Context, time.Time) ([]domain.ActiveLoan, error) {
	return s.settled, nil
}

type stubEventStore struct {
	old []domain.MonitoringEvent
}

func (s *stubEventStore) Log(context.Context, string, map[string]any) error { return nil }
func (s *stubEventStore) List(context.Context, domain.ListOpts) ([]domain.MonitoringEvent, error) {
	return nil, nil
}
func (s *stubEventStore) ListBefore(context.Context, time.Time) ([]domain.MonitoringEvent, error) {
	return s.old, nil
}

type memBlob struct {
	objects map[string]string
}

func newMemBlob() *memBlob {
	return &memBlob{objects: make(map[string]string)}
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = string(b)
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiverGroupsByMonth(t *testing.T) {
	aug := time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)
	jul := time.Date(2026, 7, 3, 9, 0, 0, 0, time.UTC)

	loans := &stubLoanStore{settled: []domain.ActiveLoan{
		{ID: "loan-1", Status: domain.LoanStatusRepaid, UpdatedAt: aug},
		{ID: "loan-2", Status: domain.LoanStatusLiquidated, UpdatedAt: aug},
		{ID: "loan-3", Status: domain.LoanStatusRepaid, UpdatedAt: jul},
	}}
	events := &stubEventStore{old: []domain.MonitoringEvent{
		{ID: 1, Kind: "liquidation.executed", CreatedAt: jul},
	}}
	blob := newMemBlob()

	arch := NewArchiver(loans, events, blob, 90*24*time.Hour, testLogger())
	if err := arch.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	augBatch, ok := blob.objects["loans/2026-08.jsonl"]
	if !ok {
		t.Fatalf("missing august loan object, have %v", keys(blob.objects))
	}
	if strings.Count(augBatch, "\n") != 2 {
		t.Fatalf("august batch has %d lines, want 2: %q", strings.Count(augBatch, "\n"), augBatch)
	}
	if !strings.Contains(augBatch, "loan-1") || !strings.Contains(augBatch, "loan-2") {
		t.Fatalf("august batch missing loans: %q", augBatch)
	}

	if _, ok := blob.objects["loans/2026-07.jsonl"]; !ok {
		t.Fatal("missing july loan object")
	}
	if ev, ok := blob.objects["events/2026-07.jsonl"]; !ok || !strings.Contains(ev, "liquidation.executed") {
		t.Fatalf("missing or wrong july event object: %q", ev)
	}
}

func TestArchiverNoRecords(t *testing.T) {
	blob := newMemBlob()
	arch := NewArchiver(&stubLoanStore{}, &stubEventStore{}, blob, time.Hour, testLogger())

	if err := arch.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(blob.objects) != 0 {
		t.Fatalf("uploaded %d objects for empty stores", len(blob.objects))
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
