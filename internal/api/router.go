package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ovalline/opsdesk/internal/outbox"
	"github.com/ovalline/opsdesk/internal/recon"
	"github.com/ovalline/opsdesk/internal/store"
)

// NewRouter creates and configures the HTTP router. Every /api/v1 route
// except health sits behind the bearer-token check; the core is never
// reached by an unauthenticated caller.
func NewRouter(pgStore *store.PostgresStore, health *HealthHandler, dispatcher *outbox.Dispatcher, lease *outbox.Lease, runner *recon.Runner, logger *slog.Logger, apiToken string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	outboxHandler := NewOutboxHandler(pgStore, dispatcher, lease, logger)
	reconHandler := NewReconHandler(runner)
	paymentHandler := NewPaymentHandler(pgStore)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.Check)

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(apiToken))

			r.Route("/outbox", func(r chi.Router) {
				r.Post("/events", outboxHandler.CreateEvent)
				r.Post("/dispatch", outboxHandler.Dispatch)
				r.Get("/failed", outboxHandler.ListFailed)
				r.Post("/{id}/retry", outboxHandler.Retry)
			})

			r.Post("/recon/run", reconHandler.Run)

			r.Route("/payments", func(r chi.Router) {
				r.Get("/", paymentHandler.List)
				r.Get("/{id}", paymentHandler.Get)
				r.Post("/{id}/attach", paymentHandler.Attach)
				r.Post("/{id}/detach", paymentHandler.Detach)
			})
		})
	})

	return r
}
