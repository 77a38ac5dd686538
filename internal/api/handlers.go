package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/obsidian-mcp/internal/index"
	"github.com/starford/obsidian-mcp/internal/noteservice"
)

const maxBodyBytes = 10 << 20

// Searcher is the subset of the index used by the search endpoint.
type Searcher interface {
	Search(query string, limit int) ([]index.SearchResult, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc    *noteservice.Service
	search Searcher
}

// NewHandler creates a new Handler. search may be nil.
func NewHandler(svc *noteservice.Service, search Searcher) *Handler {
	return &Handler{svc: svc, search: search}
}

// notePath extracts the note path from the URL (everything after /api/notes/).
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List markdown notes
//	@Tags			notes
//	@Produce		json
//	@Param			query	query		string		false	"Case-insensitive substring filter"
//	@Param			ignore	query		[]string	false	"Extra ignore globs"
//	@Success		200		{object}	NoteListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	notes, err := h.svc.ListNotes(r.Context(), q.Get("query"), q["ignore"]...)
	if err != nil {
		writeServiceError(w, "list notes", "", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Read a note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	data, err := h.svc.ReadNote(r.Context(), path)
	if err != nil {
		writeServiceError(w, "read note", path, err)
		return
	}
	writeJSON(w, http.StatusOK, NoteResponse{Path: path, Content: string(data)})
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	MessageResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.CreateNote(r.Context(), req.Path, req.Content); err != nil {
		writeServiceError(w, "create note", req.Path, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{
		Message: fmt.Sprintf("Note %q created successfully.", req.Path),
	})
}

// EditNote handles PUT /api/notes/*.
//
// Without "confirmed": true nothing is written and 202 reports what would
// happen. A confirmed edit answers 201 when the note was created and 200
// when it was overwritten.
//
//	@Summary		Create or overwrite a note after confirmation
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Note path"
//	@Param			body	body		EditNoteRequest	true	"New content"
//	@Success		200		{object}	EditResponse
//	@Success		201		{object}	EditResponse
//	@Success		202		{object}	EditResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [put]
func (h *Handler) EditNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req EditNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	res, err := h.svc.EditNote(r.Context(), path, req.Content, req.Confirmed)
	if err != nil {
		writeServiceError(w, "edit note", path, err)
		return
	}

	status := http.StatusOK
	switch res.Outcome {
	case noteservice.OutcomePending:
		status = http.StatusAccepted
	case noteservice.OutcomeCreated:
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// Search handles GET /api/search.
//
//	@Summary		Search notes in the index
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.search.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
