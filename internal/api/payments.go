package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ovalline/opsdesk/internal/store"
)

type PaymentHandler struct {
	store *store.PostgresStore
}

func NewPaymentHandler(s *store.PostgresStore) *PaymentHandler {
	return &PaymentHandler{store: s}
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	appointmentID := r.URL.Query().Get("appointment_id")

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.store.ListPaymentRecords(r.Context(), appointmentID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list payment records")
		return
	}

	respondJSON(w, http.StatusOK, records)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.store.GetPaymentRecord(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get payment record")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "payment record not found")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

type attachRequest struct {
	AppointmentID string `json:"appointment_id"`
}

// Attach is the manual operator override of the matcher; unlike
// reconciliation it replaces an existing match.
func (h *PaymentHandler) Attach(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req attachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AppointmentID == "" {
		respondError(w, http.StatusBadRequest, "appointment_id is required")
		return
	}

	appt, err := h.store.GetAppointment(r.Context(), req.AppointmentID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to look up appointment")
		return
	}
	if appt == nil {
		respondError(w, http.StatusNotFound, "appointment not found")
		return
	}

	if err := h.store.AttachAppointment(r.Context(), id, req.AppointmentID); err != nil {
		respondError(w, http.StatusNotFound, "payment record not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

func (h *PaymentHandler) Detach(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DetachAppointment(r.Context(), id); err != nil {
		respondError(w, http.StatusNotFound, "payment record not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "detached"})
}
