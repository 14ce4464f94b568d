// Package service runs the scheduling workflows against the store: every
// mutating call checks the caller, validates its input, does its reads and
// writes in one transaction and only then touches the status cache and the
// event bus.
package service

import (
	"context"
	"errors"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/metrics"

	"github.com/rs/zerolog"
)

type base struct {
	repo     domain.Repository
	cache    domain.StatusCache
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

// invalidate drops cached day statuses. Cache failures are logged, never returned.
func (b *base) invalidate(ctx context.Context, dates ...time.Time) {
	if b.cache == nil || len(dates) == 0 {
		return
	}
	if err := b.cache.Invalidate(ctx, dates...); err != nil {
		b.logger.Warn().Err(err).Int("dates", len(dates)).Msg("status cache invalidate error")
	}
}

func (b *base) publish(eventType string, payload any) {
	if b.eventBus == nil {
		return
	}
	if err := b.eventBus.PublishJSON(eventType, payload); err != nil {
		b.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

// record counts a workflow operation and, for conflicts, its kind.
func record(operation string, err error) {
	outcome := Outcome(err)
	metrics.IncBooking(operation, outcome)
	switch outcome {
	case "slot_conflict", "identity_conflict", "name_mismatch":
		metrics.IncConflict(outcome)
	}
}

// Outcome classifies err into a short label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration"
	case errors.Is(err, domain.ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, domain.ErrIdentity):
		return "identity_conflict"
	case errors.Is(err, domain.ErrNameMismatch):
		return "name_mismatch"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrStorage):
		return "storage"
	default:
		return "error"
	}
}
