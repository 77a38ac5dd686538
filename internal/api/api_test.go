package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/obsidian-mcp/internal/index"
	"github.com/starford/obsidian-mcp/internal/noteservice"
	"github.com/starford/obsidian-mcp/internal/testutil"
)

type testEnv struct {
	vault  string
	db     *index.DB
	router http.Handler
}

// newTestEnv sets up a temp vault, index, service, and router.
// An empty token means auth is disabled.
func newTestEnv(t *testing.T, token string, sse http.Handler) *testEnv {
	t.Helper()
	vault, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	svc := noteservice.NewService(store)
	return &testEnv{
		vault:  vault,
		db:     db,
		router: NewRouter(svc, db, token != "", token, sse),
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestCreateAndGetNote(t *testing.T) {
	env := newTestEnv(t, "", nil)

	w := env.do(t, http.MethodPost, "/notes", CreateNoteRequest{Path: "hello.md", Content: "# Hello\r\nWorld"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, `Note "hello.md" created successfully.`, decode[MessageResponse](t, w).Message)

	w = env.do(t, http.MethodGet, "/notes/hello.md", nil)
	require.Equal(t, http.StatusOK, w.Code)
	note := decode[NoteResponse](t, w)
	assert.Equal(t, "hello.md", note.Path)
	assert.Equal(t, "# Hello\r\nWorld", note.Content, "create stores content verbatim")
}

func TestGetNote_EncodedSlash(t *testing.T) {
	env := newTestEnv(t, "", nil)
	testutil.WriteNote(t, env.vault, "topics/note.md", "x")

	w := env.do(t, http.MethodGet, "/notes/topics%2Fnote.md", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "topics/note.md", decode[NoteResponse](t, w).Path)
}

func TestCreateNote_Errors(t *testing.T) {
	env := newTestEnv(t, "", nil)
	testutil.WriteNote(t, env.vault, "dup.md", "original")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate", CreateNoteRequest{Path: "dup.md", Content: "a"}, http.StatusConflict},
		{"missing path", CreateNoteRequest{Content: "a"}, http.StatusBadRequest},
		{"escape", CreateNoteRequest{Path: "../outside.md", Content: "a"}, http.StatusBadRequest},
		{"absolute", CreateNoteRequest{Path: "/etc/x.md", Content: "a"}, http.StatusBadRequest},
		{"not json", "just a string", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/notes", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, "original", testutil.ReadNote(t, env.vault, "dup.md"))
}

func TestEditNote_ConfirmationFlow(t *testing.T) {
	env := newTestEnv(t, "", nil)

	w := env.do(t, http.MethodPut, "/notes/new/idea.md", EditNoteRequest{Content: "draft"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	res := decode[EditResponse](t, w)
	assert.Equal(t, noteservice.OutcomePending, res.Outcome)
	assert.Contains(t, res.Message, "create")
	assert.NoFileExists(t, filepath.Join(env.vault, "new", "idea.md"))

	w = env.do(t, http.MethodPut, "/notes/new/idea.md", EditNoteRequest{Content: "draft", Confirmed: true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, `Note "new/idea.md" created successfully.`, decode[EditResponse](t, w).Message)
	assert.Equal(t, "draft\n", testutil.ReadNote(t, env.vault, "new/idea.md"))

	w = env.do(t, http.MethodPut, "/notes/new/idea.md", EditNoteRequest{Content: "v2\r\n\r\n"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, decode[EditResponse](t, w).Message, "overwrite")

	w = env.do(t, http.MethodPut, "/notes/new/idea.md", EditNoteRequest{Content: "v2\r\n\r\n", Confirmed: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, noteservice.OutcomeUpdated, decode[EditResponse](t, w).Outcome)
	assert.Equal(t, "v2\n", testutil.ReadNote(t, env.vault, "new/idea.md"))
}

func TestEditNote_RejectedNames(t *testing.T) {
	env := newTestEnv(t, "", nil)

	for _, p := range []string{"notes.txt", ".obsidian/app.md", "..%2Fescape.md", "Thumbs.db"} {
		t.Run(p, func(t *testing.T) {
			w := env.do(t, http.MethodPut, "/notes/"+p, EditNoteRequest{Content: "x", Confirmed: true})
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestEditNote_ReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores permission bits")
	}
	env := newTestEnv(t, "", nil)
	testutil.WriteNote(t, env.vault, "locked/a.md", "old")
	locked := filepath.Join(env.vault, "locked")
	require.NoError(t, os.Chmod(locked, 0o555))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	w := env.do(t, http.MethodPut, "/notes/locked/a.md", EditNoteRequest{Content: "new", Confirmed: true})
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	assert.Equal(t, "old", testutil.ReadNote(t, env.vault, "locked/a.md"))
}

func TestListNotes(t *testing.T) {
	env := newTestEnv(t, "", nil)
	for _, p := range []string{"a.md", "Projects/Plan.md", "templates/daily.md", ".trash/old.md", "image.png"} {
		testutil.WriteNote(t, env.vault, p, "x")
	}

	w := env.do(t, http.MethodGet, "/notes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Projects/Plan.md", "a.md", "templates/daily.md"}, decode[NoteListResponse](t, w).Notes)

	w = env.do(t, http.MethodGet, "/notes?query=PLAN", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Projects/Plan.md"}, decode[NoteListResponse](t, w).Notes)

	w = env.do(t, http.MethodGet, "/notes?ignore=templates&ignore=Projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a.md"}, decode[NoteListResponse](t, w).Notes)

	w = env.do(t, http.MethodGet, "/notes?ignore=%5Bbad", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestListNotes_Empty(t *testing.T) {
	env := newTestEnv(t, "", nil)
	w := env.do(t, http.MethodGet, "/notes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"notes":[]}`, w.Body.String())
}

func TestGetNote_NotFound(t *testing.T) {
	env := newTestEnv(t, "", nil)
	w := env.do(t, http.MethodGet, "/notes/nope.md", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t, "", nil)
	require.NoError(t, env.db.UpsertNote(index.NoteRow{Path: "s.md", Title: "Searchable", Checksum: "1"}, "uniqueword here"))

	w := env.do(t, http.MethodGet, "/search?q=uniqueword", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[SearchResponse](t, w)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "s.md", resp.Results[0].Path)

	w = env.do(t, http.MethodGet, "/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchEndpoint_DisabledIndex(t *testing.T) {
	_, store := testutil.TestVault(t)
	router := NewRouter(noteservice.NewService(store), nil, false, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/search?q=x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, "secret", nil)

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"valid token", []string{"Authorization", "Bearer secret"}, http.StatusOK},
		{"missing token", nil, http.StatusUnauthorized},
		{"wrong token", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"wrong scheme", []string{"Authorization", "Basic secret"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/notes", nil, tt.header...)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	env := newTestEnv(t, "", nil)
	w := env.do(t, http.MethodGet, "/notes", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAllowHosts(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := AllowHosts([]string{"localhost", "127.0.0.1", "[::1]"})(ok)

	tests := []struct {
		host string
		want int
	}{
		{"localhost:3333", http.StatusNoContent},
		{"LOCALHOST", http.StatusNoContent},
		{"127.0.0.1:3333", http.StatusNoContent},
		{"[::1]:3333", http.StatusNoContent},
		{"evil.example.com", http.StatusForbidden},
		{"127.0.0.1.nip.io:3333", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = tt.host
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAllowHosts_EmptyListAllowsAll(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "anything.example"
	w := httptest.NewRecorder()
	AllowHosts(nil)(ok).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

// stubSSE writes headers and blocks until the request is done.
var stubSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := newTestEnv(t, "tok", stubSSE)
	w := env.do(t, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSSEEvents_ValidToken(t *testing.T) {
	env := newTestEnv(t, "tok", stubSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
}
