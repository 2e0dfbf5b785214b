package api

import (
	"context"
	"net/http"
	"runtime/debug"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service liveness plus the reachability of the
// two backing stores, so an operator can tell a dead process from a
// process with a dead dependency.
type HealthHandler struct {
	db    Pinger
	cache Pinger
}

func NewHealthHandler(db, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// Check returns 200 when every dependency answers, 503 otherwise. The
// version comes from the build's main module info.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: buildVersion(),
		Checks:  map[string]string{},
	}

	for name, dep := range map[string]Pinger{"postgres": h.db, "redis": h.cache} {
		if dep == nil {
			continue
		}
		if err := dep.Ping(r.Context()); err != nil {
			resp.Checks[name] = "unreachable"
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, resp)
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "unknown"
}
