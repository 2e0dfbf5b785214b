package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ovalline/opsdesk/internal/domain"
	"github.com/ovalline/opsdesk/internal/outbox"
	"github.com/ovalline/opsdesk/internal/store"
)

type OutboxHandler struct {
	store      *store.PostgresStore
	dispatcher *outbox.Dispatcher
	lease      *outbox.Lease
	logger     *slog.Logger
}

func NewOutboxHandler(s *store.PostgresStore, d *outbox.Dispatcher, l *outbox.Lease, logger *slog.Logger) *OutboxHandler {
	return &OutboxHandler{store: s, dispatcher: d, lease: l, logger: logger}
}

type createEventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// CreateEvent is the producer surface for collaborators without a store
// handle.
func (h *OutboxHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.EventType == "" {
		respondError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		respondError(w, http.StatusBadRequest, "payload must be valid JSON")
		return
	}

	event, err := h.store.InsertOutboxEvent(r.Context(), req.EventType, req.Payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	respondJSON(w, http.StatusCreated, event)
}

type dispatchRequest struct {
	Limit int `json:"limit"`
}

// Dispatch runs one batch on demand. The limit is clamped by the core;
// a missing or garbage body simply means the default. 409 when the
// background poller holds the lease.
func (h *OutboxHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	// Body is optional; decode errors fall through to the default limit.
	json.NewDecoder(r.Body).Decode(&req)

	handle, err := h.lease.Acquire(r.Context())
	if err == outbox.ErrLeaseHeld {
		respondError(w, http.StatusConflict, "a dispatch run is already in progress")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to start dispatch")
		return
	}
	defer func() {
		if err := handle.Release(r.Context()); err != nil {
			h.logger.Warn("failed to release dispatch lease", "error", err)
		}
	}()

	stats, err := h.dispatcher.DispatchBatch(r.Context(), req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "dispatch batch failed")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// ListFailed returns dead-lettered events for operator inspection.
func (h *OutboxHandler) ListFailed(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.store.ListFailedEvents(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list failed events")
		return
	}

	respondJSON(w, http.StatusOK, events)
}

// Retry re-queues a dead-lettered event.
func (h *OutboxHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.RetryEvent(r.Context(), id); err != nil {
		respondError(w, http.StatusNotFound, "event not found or not failed")
		return
	}

	event, err := h.store.GetOutboxEvent(r.Context(), id)
	if err != nil || event == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": domain.OutboxPending})
		return
	}

	respondJSON(w, http.StatusOK, event)
}
