// Package events provides the fire-and-forget monitoring sink used by the
// lending core. Recording failures are logged and swallowed so that a broken
// event store or notification channel never aborts a lending operation.
package events

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/lendingcore/internal/domain"
	"github.com/alanyoungcy/lendingcore/internal/notify"
)

// Recorder persists monitoring events and forwards them to operator
// notification channels. The notifier is optional.
type Recorder struct {
	store    domain.EventStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

var _ domain.EventRecorder = (*Recorder)(nil)

// NewRecorder creates a recorder. Pass a nil notifier to disable alerts.
func NewRecorder(store domain.EventStore, notifier *notify.Notifier, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:    store,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "event_recorder")),
	}
}

// Record logs the event to the store and notifies operators. Failures never
// propagate to the caller.
func (r *Recorder) Record(ctx context.Context, kind string, detail map[string]any) {
	if err := r.store.Log(ctx, kind, detail); err != nil {
		r.logger.ErrorContext(ctx, "event store write failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()))
	}

	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, kind, detail); err != nil {
		r.logger.WarnContext(ctx, "event notification failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()))
	}
}
