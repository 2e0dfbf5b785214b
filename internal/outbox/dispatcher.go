// Package outbox dispatches durable outbox rows to their side-effect
// handlers. Delivery is at-least-once: a crash after a handler succeeds
// but before the row is marked processed redelivers on the next batch, so
// every handler must tolerate re-execution.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ovalline/opsdesk/internal/domain"
)

const (
	DefaultBatchLimit = 10
	MaxBatchLimit     = 50
)

// Store is the slice of the backing store the dispatcher needs.
type Store interface {
	ClaimPendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	ReleaseClaim(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string, maxAttempts int) error
}

// HandlerFunc executes the side effect for one event payload. Returning
// an error leaves the event eligible for the next batch.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Dispatcher routes claimed events by type through a fixed handler table.
type Dispatcher struct {
	store       Store
	handlers    map[string]HandlerFunc
	logger      *slog.Logger
	maxAttempts int
}

func NewDispatcher(store Store, handlers map[string]HandlerFunc, logger *slog.Logger, maxAttempts int) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 10
	}
	return &Dispatcher{
		store:       store,
		handlers:    handlers,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// ClampLimit normalizes a caller-supplied batch limit: non-positive
// values fall back to the default, oversized ones are capped.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultBatchLimit
	}
	if limit > MaxBatchLimit {
		return MaxBatchLimit
	}
	return limit
}

// DispatchBatch claims up to limit pending events oldest-first and runs
// each through its handler. One event's failure never aborts the rest;
// only a store failure does, since no further progress can be trusted.
// On abort, rows still claimed are released back to pending.
func (d *Dispatcher) DispatchBatch(ctx context.Context, limit int) (domain.DispatchStats, error) {
	limit = ClampLimit(limit)

	var stats domain.DispatchStats

	events, err := d.store.ClaimPendingEvents(ctx, limit)
	if err != nil {
		return stats, err
	}

	for i, event := range events {
		stats.Total++

		if err := d.dispatch(ctx, event); err != nil {
			stats.Failed++

			d.logger.Warn("event dispatch failed",
				"event_id", event.ID,
				"event_type", event.EventType,
				"attempts", event.Attempts+1,
				"error", err,
			)

			if markErr := d.store.MarkFailed(ctx, event.ID, err.Error(), d.maxAttempts); markErr != nil {
				d.releaseClaims(ctx, events[i:])
				return stats, markErr
			}
			continue
		}

		if err := d.store.MarkProcessed(ctx, event.ID); err != nil {
			d.releaseClaims(ctx, events[i:])
			return stats, err
		}
		stats.Succeeded++

		d.logger.Info("event dispatched",
			"event_id", event.ID,
			"event_type", event.EventType,
		)
	}

	return stats, nil
}

// releaseClaims hands still-claimed rows back to pending when a batch
// aborts mid-way, so the remainder does not sit in processing until the
// claim TTL expires. Best effort: the store is already failing, and the
// TTL reclaim covers anything this misses.
func (d *Dispatcher) releaseClaims(ctx context.Context, events []domain.OutboxEvent) {
	for _, event := range events {
		if err := d.store.ReleaseClaim(ctx, event.ID); err != nil {
			d.logger.Warn("failed to release outbox claim",
				"event_id", event.ID,
				"error", err,
			)
		}
	}
}

// dispatch resolves and runs the handler for one event, converting a
// handler panic into an ordinary failure so the batch survives.
func (d *Dispatcher) dispatch(ctx context.Context, event domain.OutboxEvent) (err error) {
	handler, ok := d.handlers[event.EventType]
	if !ok {
		return fmt.Errorf("unknown event type %q", event.EventType)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, event.Payload)
}
