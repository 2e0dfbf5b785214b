package domain

import (
	"encoding/json"
	"time"
)

// Outbox event statuses.
const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxProcessed  = "processed"
	OutboxFailed     = "failed"
)

// Outbox event types. The dispatcher's handler table is keyed by these;
// anything else is recorded as a failure.
const (
	EventQuoteDecision         = "quote.decision"
	EventPipelineStageRequest  = "pipeline.stage_request"
	EventAppointmentSchedule   = "appointment.schedule"
	EventAppointmentReschedule = "appointment.reschedule"
)

// OutboxEvent is a durable intent-to-act row. Producers insert it in the
// same transaction as the business write; the dispatcher claims and
// executes it later.
type OutboxEvent struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   *string         `json:"last_error,omitempty"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// DispatchStats aggregates the outcome of one dispatch batch.
type DispatchStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
