package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/specs", h.ListSpecs)
	r.Get("/specs/{name}/status", h.GetSpecStatus)
	r.Post("/specs/{name}/sync", h.SyncSpec)
	r.Get("/specs/{name}/dry-run", h.DryRunSpec)

	r.Post("/sync", h.SyncAll)
	r.Get("/dry-run", h.DryRunAll)

	r.Get("/journal", h.GetJournal)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
