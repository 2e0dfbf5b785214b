package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/ovalline/opsdesk/internal/domain"
)

const paymentColumns = `id, external_charge_id, amount_cents, currency, status, method,
		card_brand, last4, receipt_url, metadata, appointment_id, created_at, captured_at, updated_at`

// UpsertPaymentRecord inserts or updates a payment record keyed by the
// provider charge id, as one atomic statement. On update every mutable
// field is replaced except appointment_id, which is only filled when
// currently NULL so a manually attached appointment survives
// reconciliation. Returns true when the row was inserted.
func (s *PostgresStore) UpsertPaymentRecord(ctx context.Context, rec domain.PaymentRecord) (bool, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO payment_records (
			external_charge_id, amount_cents, currency, status, method,
			card_brand, last4, receipt_url, metadata, appointment_id,
			created_at, captured_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (external_charge_id) DO UPDATE SET
			amount_cents   = EXCLUDED.amount_cents,
			currency       = EXCLUDED.currency,
			status         = EXCLUDED.status,
			method         = EXCLUDED.method,
			card_brand     = EXCLUDED.card_brand,
			last4          = EXCLUDED.last4,
			receipt_url    = EXCLUDED.receipt_url,
			metadata       = EXCLUDED.metadata,
			appointment_id = COALESCE(payment_records.appointment_id, EXCLUDED.appointment_id),
			captured_at    = EXCLUDED.captured_at,
			updated_at     = NOW()
		RETURNING (xmax = 0)
	`,
		rec.ExternalChargeID, rec.AmountCents, rec.Currency, rec.Status, rec.Method,
		rec.CardBrand, rec.Last4, rec.ReceiptURL, rec.Metadata, rec.AppointmentID,
		rec.CreatedAt, rec.CapturedAt,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upserting payment record: %w", err)
	}
	return inserted, nil
}

// GetPaymentRecord returns a payment record by ID, or nil when absent.
func (s *PostgresStore) GetPaymentRecord(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	var rec domain.PaymentRecord
	err := s.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payment_records WHERE id = $1
	`, id).Scan(
		&rec.ID, &rec.ExternalChargeID, &rec.AmountCents, &rec.Currency, &rec.Status,
		&rec.Method, &rec.CardBrand, &rec.Last4, &rec.ReceiptURL, &rec.Metadata,
		&rec.AppointmentID, &rec.CreatedAt, &rec.CapturedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying payment record: %w", err)
	}
	return &rec, nil
}

// ListPaymentRecords returns payment records newest-first, optionally
// filtered by appointment.
func (s *PostgresStore) ListPaymentRecords(ctx context.Context, appointmentID string, limit int) ([]domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_records`
	args := []interface{}{}
	argIdx := 1

	if appointmentID != "" {
		query += fmt.Sprintf(" WHERE appointment_id = $%d", argIdx)
		args = append(args, appointmentID)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying payment records: %w", err)
	}
	defer rows.Close()

	var records []domain.PaymentRecord
	for rows.Next() {
		var rec domain.PaymentRecord
		err := rows.Scan(
			&rec.ID, &rec.ExternalChargeID, &rec.AmountCents, &rec.Currency, &rec.Status,
			&rec.Method, &rec.CardBrand, &rec.Last4, &rec.ReceiptURL, &rec.Metadata,
			&rec.AppointmentID, &rec.CreatedAt, &rec.CapturedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning payment record: %w", err)
		}
		records = append(records, rec)
	}

	if records == nil {
		records = []domain.PaymentRecord{}
	}

	return records, nil
}

// AttachAppointment is the manual operator correction; unlike
// reconciliation it overwrites whatever is there.
func (s *PostgresStore) AttachAppointment(ctx context.Context, paymentID, appointmentID string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE payment_records SET appointment_id = $2, updated_at = NOW()
		WHERE id = $1
	`, paymentID, appointmentID)
	if err != nil {
		return fmt.Errorf("attaching appointment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("payment record not found")
	}
	return nil
}

// DetachAppointment clears a manual or reconciled match.
func (s *PostgresStore) DetachAppointment(ctx context.Context, paymentID string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE payment_records SET appointment_id = NULL, updated_at = NOW()
		WHERE id = $1
	`, paymentID)
	if err != nil {
		return fmt.Errorf("detaching appointment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("payment record not found")
	}
	return nil
}
