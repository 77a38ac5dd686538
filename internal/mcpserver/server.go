// Package mcpserver exposes the vault operations as MCP (Model Context
// Protocol) tools over stdio or stateless streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/obsidian-mcp/internal/apperr"
	"github.com/starford/obsidian-mcp/internal/index"
	"github.com/starford/obsidian-mcp/internal/noteservice"
)

// Server identity reported during MCP initialization.
const (
	ServerName    = "obsidian-mcp"
	ServerVersion = "1.0.0"
)

// Searcher is the subset of the index used by the search tool.
type Searcher interface {
	Search(query string, limit int) ([]index.SearchResult, error)
}

// Server wraps the MCP server with the vault tools.
type Server struct {
	mcp    *server.MCPServer
	notes  *noteservice.Service
	search Searcher
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSearch registers the search_notes tool backed by idx.
func WithSearch(idx Searcher) Option {
	return func(s *Server) {
		s.search = idx
	}
}

// WithLogger sets the logger used for unexpected tool failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new MCP server with all vault tools registered.
func New(notes *noteservice.Service, opts ...Option) *Server {
	s := &Server{notes: notes, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	s.mcp.AddTool(mcp.NewTool("get_notes",
		mcp.WithDescription("Get list of notes"),
		mcp.WithString("query", mcp.Description("The query to search for notes"), mcp.DefaultString("")),
		mcp.WithArray("ignore",
			mcp.Description("Extra glob patterns (relative to the vault root) to exclude from the listing"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), s.getNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note from given file name"),
		mcp.WithString("fileName", mcp.Required(), mcp.Description("The name of the note to read")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note with given file name and content"),
		mcp.WithString("fileName", mcp.Required(), mcp.Description("The name of the note to create")),
		mcp.WithString("content", mcp.Required(), mcp.Description("The content of the note")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("edit_note",
		mcp.WithDescription("Edit or create a note with given file name and content. "+
			"Call with confirmed=false first; the reply says whether the note will be created or overwritten."),
		mcp.WithString("fileName", mcp.Required(), mcp.Description("The name of the note to edit")),
		mcp.WithString("content", mcp.Required(), mcp.Description("The content of the note")),
		mcp.WithBoolean("confirmed", mcp.Required(), mcp.Description("Whether editing or creating the note is confirmed")),
	), s.editNote)

	if s.search != nil {
		s.mcp.AddTool(mcp.NewTool("search_notes",
			mcp.WithDescription("Full-text search through note titles, tags and content."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		), s.searchNotes)
	}

	s.mcp.AddResource(
		mcp.NewResource(ConventionsURI, "Vault Conventions",
			mcp.WithResourceDescription("Naming and formatting rules enforced when notes are written."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readConventions,
	)

	return s
}

// ServeStdio serves newline-delimited JSON-RPC on in/out until in is
// exhausted or ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// HTTPHandler returns a stateless streamable HTTP handler: every request is
// served by a fresh session, nothing is kept between calls.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type notesResult struct {
	Notes []string `json:"notes"`
}

func (s *Server) getNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	ignore := req.GetStringSlice("ignore", nil)

	notes, err := s.notes.ListNotes(ctx, query, ignore...)
	if err != nil {
		return s.errorResult("get_notes", "", err), nil
	}
	out := notesResult{Notes: notes}
	text, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultStructured(out, string(text)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("fileName")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.notes.ReadNote(ctx, name)
	if err != nil {
		return s.errorResult("read_note", name, err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("fileName")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.notes.CreateNote(ctx, name, content); err != nil {
		return s.errorResult("create_note", name, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Note %q created successfully.", name)), nil
}

func (s *Server) editNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("fileName")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	confirmed, err := req.RequireBool("confirmed")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.notes.EditNote(ctx, name, content, confirmed)
	if err != nil {
		return s.errorResult("edit_note", name, err), nil
	}
	if res.Outcome == noteservice.OutcomePending {
		// Reported as an error so the caller does not treat the note as written.
		return mcp.NewToolResultError(res.Message), nil
	}
	return mcp.NewToolResultText(res.Message), nil
}

func (s *Server) searchNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.search.Search(query, 20)
	if err != nil {
		return s.errorResult("search_notes", "", err), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matching notes"), nil
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.Path)
	}
	return mcp.NewToolResultStructured(map[string]any{"results": results}, strings.Join(lines, "\n")), nil
}

func (s *Server) readConventions(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ConventionsURI,
			MIMEType: "text/markdown",
			Text:     Conventions,
		},
	}, nil
}

// errorResult turns a service error into the text the caller sees. Only
// unexpected failures are logged.
func (s *Server) errorResult(tool, name string, err error) *mcp.CallToolResult {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return mcp.NewToolResultError(verr.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("Note %q not found.", name))
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError(fmt.Sprintf("Note with filename %q already exists.", name))
	case errors.Is(err, apperr.ErrReadOnly):
		return mcp.NewToolResultError("Impossible to edit: note is read-only.")
	}
	s.logger.Error("tool failed",
		slog.String("tool", tool),
		slog.String("file_name", name),
		slog.String("error", err.Error()))
	return mcp.NewToolResultError(err.Error())
}
