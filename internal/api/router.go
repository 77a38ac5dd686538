package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/obsidian-mcp/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// search, if non-nil, is served at GET /search.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, search Searcher, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, search)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.EditNote)

	if search != nil {
		r.Get("/search", h.Search)
	}
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
