package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ovalline/opsdesk/internal/domain"
)

const outboxColumns = "id, event_type, payload, status, attempts, last_error, claimed_at, created_at, processed_at"

// ClaimTTL is how long a processing row stays owned by its claimer. A
// dispatcher that crashed mid-batch stops renewing nothing; once the TTL
// passes, the row is claimable again and delivery resumes.
const ClaimTTL = 5 * time.Minute

// InsertOutboxEvent appends a pending event. Callers that need atomicity
// with a business write should run this inside their own transaction via
// the pool; the row shape is the only contract.
func (s *PostgresStore) InsertOutboxEvent(ctx context.Context, eventType string, payload []byte) (*domain.OutboxEvent, error) {
	var event domain.OutboxEvent
	err := s.pool.QueryRow(ctx, `
		INSERT INTO outbox_events (event_type, payload)
		VALUES ($1, $2)
		RETURNING `+outboxColumns+`
	`, eventType, payload).Scan(
		&event.ID, &event.EventType, &event.Payload, &event.Status,
		&event.Attempts, &event.LastError, &event.ClaimedAt,
		&event.CreatedAt, &event.ProcessedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting outbox event: %w", err)
	}
	return &event, nil
}

// ClaimPendingEvents atomically flips up to limit eligible rows to
// processing and returns them oldest-first. Eligible means pending, or
// processing with a claim older than ClaimTTL: a dispatcher that died
// between claim and mark loses its rows to the next caller instead of
// stranding them. SKIP LOCKED keeps a manual dispatch and the background
// poller from selecting the same rows.
func (s *PostgresStore) ClaimPendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE outbox_events SET status = 'processing', claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = 'pending'
			   OR (status = 'processing' AND claimed_at < NOW() - make_interval(secs => $2))
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+outboxColumns+`
	`, limit, ClaimTTL.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claiming outbox batch: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		err := rows.Scan(
			&e.ID, &e.EventType, &e.Payload, &e.Status,
			&e.Attempts, &e.LastError, &e.ClaimedAt,
			&e.CreatedAt, &e.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading outbox batch: %w", err)
	}

	// RETURNING does not preserve subquery order.
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	return events, nil
}

// ReleaseClaim hands a claimed row straight back to pending. The
// dispatcher calls it for rows it claimed but could not finish, so they
// become eligible immediately instead of after the claim TTL.
func (s *PostgresStore) ReleaseClaim(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'pending', claimed_at = NULL
		WHERE id = $1 AND status = 'processing'
	`, id)
	if err != nil {
		return fmt.Errorf("releasing outbox claim: %w", err)
	}
	return nil
}

// MarkProcessed finalizes a claimed event. Set exactly once per row; only
// RetryEvent re-nulls it.
func (s *PostgresStore) MarkProcessed(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'processed', claimed_at = NULL, processed_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("marking event processed: %w", err)
	}
	return nil
}

// MarkFailed records a handler failure. The row returns to pending and
// stays eligible for the next batch until attempts reaches maxAttempts,
// at which point it is parked as failed for an operator to inspect.
func (s *PostgresStore) MarkFailed(ctx context.Context, id string, reason string, maxAttempts int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    last_error = $2,
		    claimed_at = NULL,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE id = $1
	`, id, reason, maxAttempts)
	if err != nil {
		return fmt.Errorf("marking event failed: %w", err)
	}
	return nil
}

// ListFailedEvents returns dead-lettered events, newest first.
func (s *PostgresStore) ListFailedEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+outboxColumns+` FROM outbox_events
		WHERE status = 'failed'
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying failed events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		err := rows.Scan(
			&e.ID, &e.EventType, &e.Payload, &e.Status,
			&e.Attempts, &e.LastError, &e.ClaimedAt,
			&e.CreatedAt, &e.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning failed event: %w", err)
		}
		events = append(events, e)
	}

	if events == nil {
		events = []domain.OutboxEvent{}
	}

	return events, nil
}

// RetryEvent is the operator reset: a failed event goes back to pending
// with a fresh attempt budget.
func (s *PostgresStore) RetryEvent(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'pending', attempts = 0, last_error = NULL,
		    claimed_at = NULL, processed_at = NULL
		WHERE id = $1 AND status = 'failed'
	`, id)
	if err != nil {
		return fmt.Errorf("retrying event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("event not found or not failed")
	}
	return nil
}

// GetOutboxEvent returns a single event by ID, or nil when absent.
func (s *PostgresStore) GetOutboxEvent(ctx context.Context, id string) (*domain.OutboxEvent, error) {
	var e domain.OutboxEvent
	err := s.pool.QueryRow(ctx, `
		SELECT `+outboxColumns+` FROM outbox_events WHERE id = $1
	`, id).Scan(
		&e.ID, &e.EventType, &e.Payload, &e.Status,
		&e.Attempts, &e.LastError, &e.ClaimedAt,
		&e.CreatedAt, &e.ProcessedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying outbox event: %w", err)
	}
	return &e, nil
}
