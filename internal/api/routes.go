package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes wires every HTTP endpoint the gateway exposes. The
// audit-stream websocket route is registered outside the logging
// middleware group, the same ordering the teacher's live-query
// websocket route uses, so the upgrade's hijacked response writer is
// never wrapped by a status-capturing middleware.
func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/v1/audit", HandleAuditStream(h.AuditHub, h.Log))

	r.Group(func(r chi.Router) {
		r.Use(LoggingMiddleware(h.Log))
		r.Route("/v1", func(r chi.Router) {
			r.Post("/query", h.HandleQuery)
			r.Get("/schema", h.HandleSchema)
		})
		r.Get("/healthz", h.HandleHealthz)
	})

	return r
}
