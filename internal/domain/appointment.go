package domain

import "time"

// Appointment is the scheduling row the integration core reads and
// annotates. Creation and lifecycle live in the scheduling layer.
type Appointment struct {
	ID                string     `json:"id"`
	CustomerEmail     string     `json:"customer_email"`
	StartsAt          time.Time  `json:"starts_at"`
	QuotedAmountCents int64      `json:"quoted_amount_cents"`
	CalendarEventID   *string    `json:"calendar_event_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Quote decision values recorded by the quote.decision handler.
const (
	QuoteAccepted = "accepted"
	QuoteDeclined = "declined"
)
