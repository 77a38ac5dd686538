package api

import (
	"github.com/starford/obsidian-mcp/internal/index"
	"github.com/starford/obsidian-mcp/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nWorld"`
}

// EditNoteRequest is the request body for editing a note.
type EditNoteRequest struct {
	Content   string `json:"content" example:"# Updated\nContent"`
	Confirmed bool   `json:"confirmed" example:"false"`
}

// NoteResponse is the raw content of one note.
type NoteResponse struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nWorld" validate:"required"`
}

// NoteListResponse wraps a note listing.
type NoteListResponse struct {
	Notes []string `json:"notes" validate:"required"`
}

// MessageResponse carries a human-readable outcome.
type MessageResponse struct {
	Message string `json:"message" validate:"required"`
}

// EditResponse is the outcome of an edit (aliased from the domain layer).
type EditResponse = noteservice.EditResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}
