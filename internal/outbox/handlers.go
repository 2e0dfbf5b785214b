package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ovalline/opsdesk/internal/calendar"
	"github.com/ovalline/opsdesk/internal/domain"
	"github.com/ovalline/opsdesk/internal/retry"
)

// Appointment length is not part of the event payload today; the
// scheduling layer books uniform slots.
const defaultAppointmentLength = time.Hour

// HandlerStore is the slice of the backing store the handlers write to.
type HandlerStore interface {
	ApplyQuoteDecision(ctx context.Context, quoteID, decision string) error
	RecordStageRequest(ctx context.Context, quoteID, stage string) error
	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	SetCalendarEventID(ctx context.Context, appointmentID, calendarEventID string) error
}

// Handlers owns the side effects behind each outbox event type.
type Handlers struct {
	store    HandlerStore
	calendar calendar.Client
	logger   *slog.Logger
	retry    retry.Options
}

func NewHandlers(store HandlerStore, cal calendar.Client, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:    store,
		calendar: cal,
		logger:   logger,
		retry:    retry.DefaultOptions,
	}
}

// Routes is the complete handler table. Adding an event type means
// adding a constant in domain and a row here; anything missing lands in
// the dispatcher's unknown-type branch.
func (h *Handlers) Routes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		domain.EventQuoteDecision:         h.QuoteDecision,
		domain.EventPipelineStageRequest:  h.PipelineStageRequest,
		domain.EventAppointmentSchedule:   h.AppointmentSchedule,
		domain.EventAppointmentReschedule: h.AppointmentReschedule,
	}
}

type quoteDecisionPayload struct {
	QuoteID  string `json:"quote_id"`
	Decision string `json:"decision"`
}

// QuoteDecision records an accept/decline. The store write only touches
// undecided quotes, so redelivery is a no-op.
func (h *Handlers) QuoteDecision(ctx context.Context, payload json.RawMessage) error {
	var p quoteDecisionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("parsing quote decision payload: %w", err)
	}
	if p.QuoteID == "" {
		return fmt.Errorf("quote decision payload missing quote_id")
	}
	if p.Decision != domain.QuoteAccepted && p.Decision != domain.QuoteDeclined {
		return fmt.Errorf("invalid quote decision %q", p.Decision)
	}

	return h.store.ApplyQuoteDecision(ctx, p.QuoteID, p.Decision)
}

type stageRequestPayload struct {
	QuoteID string `json:"quote_id"`
	Stage   string `json:"stage"`
}

// PipelineStageRequest marks a pipeline stage as requested. The unique
// constraint on (quote, stage) absorbs redelivery.
func (h *Handlers) PipelineStageRequest(ctx context.Context, payload json.RawMessage) error {
	var p stageRequestPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("parsing stage request payload: %w", err)
	}
	if p.QuoteID == "" || p.Stage == "" {
		return fmt.Errorf("stage request payload missing quote_id or stage")
	}

	return h.store.RecordStageRequest(ctx, p.QuoteID, p.Stage)
}

type appointmentEventPayload struct {
	AppointmentID string `json:"appointment_id"`
	Title         string `json:"title"`
	Notes         string `json:"notes,omitempty"`
}

// AppointmentSchedule creates the external calendar event for an
// appointment. Creation is retried through the bounded executor; an
// empty id is the provider's "not yet" sentinel. If the appointment
// already carries a calendar event id this is a redelivery and nothing
// happens.
func (h *Handlers) AppointmentSchedule(ctx context.Context, payload json.RawMessage) error {
	p, appt, err := h.loadAppointment(ctx, payload)
	if err != nil {
		return err
	}

	if appt.CalendarEventID != nil {
		return nil
	}

	req := calendar.EventRequest{
		Title:    p.Title,
		StartsAt: appt.StartsAt,
		EndsAt:   appt.StartsAt.Add(defaultAppointmentLength),
		Notes:    p.Notes,
	}

	externalID, err := retry.Do(ctx, h.retry, func(attempt int) (string, error) {
		return h.calendar.CreateEvent(ctx, req)
	}, func(id string) bool { return id == "" })
	if err != nil {
		return fmt.Errorf("creating calendar event: %w", err)
	}
	if externalID == "" {
		// Soft failure survived every attempt; leave the event pending.
		h.logger.Warn("calendar create exhausted retries",
			"appointment_id", p.AppointmentID,
		)
		return fmt.Errorf("calendar event not created for appointment %s", p.AppointmentID)
	}

	return h.store.SetCalendarEventID(ctx, p.AppointmentID, externalID)
}

// AppointmentReschedule pushes a new time to the existing calendar
// event. A false return from the provider is the "not yet" sentinel.
func (h *Handlers) AppointmentReschedule(ctx context.Context, payload json.RawMessage) error {
	p, appt, err := h.loadAppointment(ctx, payload)
	if err != nil {
		return err
	}

	if appt.CalendarEventID == nil {
		return fmt.Errorf("appointment %s has no calendar event to reschedule", p.AppointmentID)
	}

	req := calendar.EventRequest{
		Title:    p.Title,
		StartsAt: appt.StartsAt,
		EndsAt:   appt.StartsAt.Add(defaultAppointmentLength),
		Notes:    p.Notes,
	}

	ok, err := retry.Do(ctx, h.retry, func(attempt int) (bool, error) {
		return h.calendar.UpdateEvent(ctx, *appt.CalendarEventID, req)
	}, func(ok bool) bool { return !ok })
	if err != nil {
		return fmt.Errorf("updating calendar event: %w", err)
	}
	if !ok {
		h.logger.Warn("calendar update exhausted retries",
			"appointment_id", p.AppointmentID,
		)
		return fmt.Errorf("calendar event not updated for appointment %s", p.AppointmentID)
	}

	return nil
}

func (h *Handlers) loadAppointment(ctx context.Context, payload json.RawMessage) (appointmentEventPayload, *domain.Appointment, error) {
	var p appointmentEventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, nil, fmt.Errorf("parsing appointment payload: %w", err)
	}
	if p.AppointmentID == "" {
		return p, nil, fmt.Errorf("appointment payload missing appointment_id")
	}

	appt, err := h.store.GetAppointment(ctx, p.AppointmentID)
	if err != nil {
		return p, nil, err
	}
	if appt == nil {
		return p, nil, fmt.Errorf("appointment %s not found", p.AppointmentID)
	}
	return p, appt, nil
}
