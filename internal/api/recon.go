package api

import (
	"encoding/json"
	"net/http"

	"github.com/ovalline/opsdesk/internal/recon"
)

type ReconHandler struct {
	runner *recon.Runner
}

func NewReconHandler(r *recon.Runner) *ReconHandler {
	return &ReconHandler{runner: r}
}

type reconRequest struct {
	WindowDays int `json:"window_days"`
}

// Run triggers a reconciliation pass. Out-of-range windows fall back to
// the default inside the core.
func (h *ReconHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req reconRequest
	// Body is optional; decode errors fall through to the default window.
	json.NewDecoder(r.Body).Decode(&req)

	result, err := h.runner.Reconcile(r.Context(), req.WindowDays)
	if err != nil {
		respondError(w, http.StatusBadGateway, "reconciliation failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
