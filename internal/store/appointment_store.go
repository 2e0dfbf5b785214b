package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ovalline/opsdesk/internal/domain"
)

const appointmentColumns = `id, customer_email, starts_at, quoted_amount_cents,
		calendar_event_id, created_at, updated_at`

// GetAppointment returns an appointment by ID, or nil when absent.
// Callers pass ids pulled from charge metadata and description tokens,
// so a string postgres cannot cast to uuid means absent, not an error.
func (s *PostgresStore) GetAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	var a domain.Appointment
	err := s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+` FROM appointments WHERE id = $1
	`, id).Scan(
		&a.ID, &a.CustomerEmail, &a.StartsAt, &a.QuotedAmountCents,
		&a.CalendarEventID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			return nil, nil
		}
		return nil, fmt.Errorf("querying appointment: %w", err)
	}
	return &a, nil
}

// FindAppointmentsByCustomer returns appointments for a customer with the
// given quoted amount whose start time falls inside [center-radius,
// center+radius]. Used by the matcher's proximity heuristic.
func (s *PostgresStore) FindAppointmentsByCustomer(ctx context.Context, email string, amountCents int64, center time.Time, radius time.Duration) ([]domain.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE customer_email = $1
		  AND quoted_amount_cents = $2
		  AND starts_at BETWEEN $3 AND $4
		ORDER BY starts_at ASC
	`, email, amountCents, center.Add(-radius), center.Add(radius))
	if err != nil {
		return nil, fmt.Errorf("finding appointments by customer: %w", err)
	}
	defer rows.Close()

	var appointments []domain.Appointment
	for rows.Next() {
		var a domain.Appointment
		err := rows.Scan(
			&a.ID, &a.CustomerEmail, &a.StartsAt, &a.QuotedAmountCents,
			&a.CalendarEventID, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning appointment: %w", err)
		}
		appointments = append(appointments, a)
	}

	return appointments, nil
}

// SetCalendarEventID records the external calendar id for an appointment.
// Only fills when unset, so a redelivered schedule event is a no-op.
func (s *PostgresStore) SetCalendarEventID(ctx context.Context, appointmentID, calendarEventID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET calendar_event_id = $2, updated_at = NOW()
		WHERE id = $1 AND calendar_event_id IS NULL
	`, appointmentID, calendarEventID)
	if err != nil {
		return fmt.Errorf("setting calendar event id: %w", err)
	}
	return nil
}

// ApplyQuoteDecision records an accept/decline on a quote. Idempotent:
// re-applying the same decision affects nothing, and a decision already
// recorded is never replaced.
func (s *PostgresStore) ApplyQuoteDecision(ctx context.Context, quoteID, decision string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE quotes
		SET decision = $2, decided_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND decision IS NULL
	`, quoteID, decision)
	if err != nil {
		return fmt.Errorf("applying quote decision: %w", err)
	}
	return nil
}

// RecordStageRequest marks a pipeline stage as requested for a quote.
// The unique (quote_id, stage) constraint makes redelivery a no-op.
func (s *PostgresStore) RecordStageRequest(ctx context.Context, quoteID, stage string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_stage_requests (quote_id, stage)
		VALUES ($1, $2)
		ON CONFLICT (quote_id, stage) DO NOTHING
	`, quoteID, stage)
	if err != nil {
		return fmt.Errorf("recording stage request: %w", err)
	}
	return nil
}
