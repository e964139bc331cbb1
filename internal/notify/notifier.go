// Package notify fans monitoring events out to operator channels. Each
// configured sender (Telegram, Discord) receives the alert; the allowed
// event list keeps routine events like per-loan collateral checks from
// paging anyone.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Sender delivers one alert to a single channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to all registered senders, filtered by event
// kind. An empty allowed list lets every kind through.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a notifier delivering to the given senders. Only event
// kinds listed in events are forwarded; an empty list allows all kinds.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers an event alert to every sender if its kind is allowed.
// Sender failures are collected; one failing channel does not block the rest.
func (n *Notifier) Notify(ctx context.Context, kind string, detail map[string]any) error {
	if len(n.senders) == 0 {
		return nil
	}
	if len(n.allowed) > 0 && !n.allowed[kind] {
		return nil
	}

	message := FormatDetail(detail)

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, kind, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("kind", kind),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// FormatDetail renders an event detail map as one line per field, sorted by
// key for stable output.
func FormatDetail(detail map[string]any) string {
	if len(detail) == 0 {
		return "(no detail)"
	}

	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, detail[k]))
	}
	return strings.Join(lines, "\n")
}
