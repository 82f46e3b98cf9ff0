// Package worker applies record events to a secondary backend.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conti/internal/amqp"
	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/metrics"
	"conti/internal/storage"
)

const (
	seenCapacity = 10000
	seenTTL      = 24 * time.Hour
)

// MirrorWorker copies every user, expense and bill announced on the queue
// into a target backend, typically the Google Sheets spreadsheet.
// Redelivered events are recognised by ID and applied once.
type MirrorWorker struct {
	target  storage.Backend
	seen    *cache.LRUCache[time.Time]
	metrics *metrics.Metrics
	logger  *log.Logger
}

func NewMirrorWorker(target storage.Backend, m *metrics.Metrics, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &MirrorWorker{
		target:  target,
		seen:    cache.NewLRUCache[time.Time](seenCapacity, seenTTL),
		metrics: m,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// Seen exposes the ID cache so callers can sweep expired entries.
func (w *MirrorWorker) Seen() cache.Cleaner { return w.seen }

// HandleEvent applies one event. Records the target rejects as invalid
// are dropped with a log line; storage failures are returned so the
// message is requeued.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev amqp.RecordEvent) error {
	id := ev.ID.String()
	if _, ok := w.seen.Get(id); ok {
		w.logger.DebugContext(ctx, "Skipping already mirrored event", "id", id, log.FieldKind, ev.Kind)
		w.count(ev.Kind, "duplicate")
		return nil
	}

	err := w.apply(ctx, ev)
	switch {
	case err == nil:
		w.seen.Set(id, time.Now())
		w.count(ev.Kind, "applied")
		w.logger.InfoContext(ctx, "Mirrored record event",
			"id", id,
			log.FieldKind, ev.Kind,
			log.FieldUsername, ev.Username)
		return nil
	case errors.Is(err, core.ErrDuplicateUser):
		w.seen.Set(id, time.Now())
		w.count(ev.Kind, "duplicate")
		return nil
	case errors.Is(err, core.ErrInvalidRecord), errors.Is(err, core.ErrInvalidInput):
		w.count(ev.Kind, "rejected")
		w.logger.WarnContext(ctx, "Dropping record event the mirror rejects",
			"id", id,
			log.FieldKind, ev.Kind,
			log.FieldError, err)
		return nil
	default:
		w.count(ev.Kind, "failed")
		return fmt.Errorf("mirror %s event %s: %w", ev.Kind, id, err)
	}
}

func (w *MirrorWorker) apply(ctx context.Context, ev amqp.RecordEvent) error {
	switch {
	case ev.Kind == amqp.KindUser && ev.User != nil:
		// Events never carry the hash; mirrored user rows are directory
		// entries only.
		return w.target.AppendUser(ctx, core.User{Username: ev.User.Username, Email: ev.User.Email})
	case ev.Kind == amqp.KindExpense && ev.Expense != nil:
		return w.target.AppendExpense(ctx, *ev.Expense)
	case ev.Kind == amqp.KindBill && ev.Bill != nil:
		return w.target.AppendBill(ctx, *ev.Bill)
	default:
		return fmt.Errorf("%w: event kind %q without payload", core.ErrInvalidInput, ev.Kind)
	}
}

func (w *MirrorWorker) count(kind amqp.Kind, result string) {
	if w.metrics != nil {
		w.metrics.EventsMirrored.WithLabelValues(string(kind), result).Inc()
	}
}
