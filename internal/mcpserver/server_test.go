package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/obsidian-mcp/internal/index"
	"github.com/starford/obsidian-mcp/internal/noteservice"
	"github.com/starford/obsidian-mcp/internal/testutil"
)

func testServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	vault, store := testutil.TestVault(t)
	return New(noteservice.NewService(store), opts...), vault
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "get_notes":
		result, err = srv.getNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "edit_note":
		result, err = srv.editNote(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	require.NoError(t, err, "tool %s", name)
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// rpc sends one JSON-RPC message through the server and returns the encoded
// response.
func rpc(t *testing.T, srv *Server, method string, params any) string {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	resp := srv.MCPServer().HandleMessage(context.Background(), msg)
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(out)
}

func TestGetNotes(t *testing.T) {
	srv, vault := testServer(t)
	for _, p := range []string{"b.md", "Projects/Roadmap.md", "templates/t.md", ".trash/x.md", "pic.png"} {
		testutil.WriteNote(t, vault, p, "x")
	}

	r := callTool(t, srv, "get_notes", map[string]any{})
	require.False(t, r.IsError, resultText(r))
	assert.Equal(t, notesResult{Notes: []string{"Projects/Roadmap.md", "b.md", "templates/t.md"}}, r.StructuredContent)
	assert.JSONEq(t, `{"notes":["Projects/Roadmap.md","b.md","templates/t.md"]}`, resultText(r))

	r = callTool(t, srv, "get_notes", map[string]any{"query": "road"})
	assert.Equal(t, notesResult{Notes: []string{"Projects/Roadmap.md"}}, r.StructuredContent)

	r = callTool(t, srv, "get_notes", map[string]any{"ignore": []any{"templates/**", "templates"}})
	assert.Equal(t, notesResult{Notes: []string{"Projects/Roadmap.md", "b.md"}}, r.StructuredContent)
}

func TestGetNotes_EmptyVault(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_notes", map[string]any{})
	require.False(t, r.IsError)
	assert.JSONEq(t, `{"notes":[]}`, resultText(r))
}

func TestGetNotes_BadPattern(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_notes", map[string]any{"ignore": []any{"[oops"}})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(r), "invalid ignore pattern")
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_note", map[string]any{
		"fileName": "test.md",
		"content":  "# Test\r\nHello",
	})
	require.False(t, r.IsError, resultText(r))
	assert.Equal(t, `Note "test.md" created successfully.`, resultText(r))

	r = callTool(t, srv, "read_note", map[string]any{"fileName": "test.md"})
	require.False(t, r.IsError, resultText(r))
	assert.Equal(t, "# Test\r\nHello", resultText(r))
}

func TestCreateNote_Exists(t *testing.T) {
	srv, vault := testServer(t)
	testutil.WriteNote(t, vault, "a.md", "keep")

	r := callTool(t, srv, "create_note", map[string]any{"fileName": "a.md", "content": "replace"})
	assert.True(t, r.IsError)
	assert.Equal(t, `Note with filename "a.md" already exists.`, resultText(r))
	assert.Equal(t, "keep", testutil.ReadNote(t, vault, "a.md"))
}

func TestReadNote_Errors(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "read_note", map[string]any{"fileName": "nope.md"})
	assert.True(t, r.IsError)
	assert.Equal(t, `Note "nope.md" not found.`, resultText(r))

	r = callTool(t, srv, "read_note", map[string]any{"fileName": "../../etc/passwd"})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(r), "must stay within vault root")

	r = callTool(t, srv, "read_note", map[string]any{})
	assert.True(t, r.IsError)
}

func TestEditNote_TwoStep(t *testing.T) {
	srv, vault := testServer(t)
	args := map[string]any{"fileName": "daily/today.md", "content": "line\r\n\r\n", "confirmed": false}

	r := callTool(t, srv, "edit_note", args)
	assert.True(t, r.IsError, "unconfirmed edit is reported as an error")
	assert.Contains(t, resultText(r), "Confirmation required to create")
	assert.NoFileExists(t, filepath.Join(vault, "daily", "today.md"))

	args["confirmed"] = true
	r = callTool(t, srv, "edit_note", args)
	require.False(t, r.IsError, resultText(r))
	assert.Equal(t, `Note "daily/today.md" created successfully.`, resultText(r))
	assert.Equal(t, "line\n", testutil.ReadNote(t, vault, "daily/today.md"))

	args["content"] = "second"
	args["confirmed"] = false
	r = callTool(t, srv, "edit_note", args)
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(r), "Confirmation required to overwrite")
	assert.Equal(t, "line\n", testutil.ReadNote(t, vault, "daily/today.md"))

	args["confirmed"] = true
	r = callTool(t, srv, "edit_note", args)
	require.False(t, r.IsError, resultText(r))
	assert.Equal(t, `Note "daily/today.md" updated successfully.`, resultText(r))
	assert.Equal(t, "second\n", testutil.ReadNote(t, vault, "daily/today.md"))
}

func TestEditNote_Validation(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		name, want string
	}{
		{"/abs/note.md", "must be relative"},
		{`C:\notes\a.md`, "must be relative"},
		{".obsidian/workspace.md", "hidden/system names not allowed"},
		{"notes/.DS_Store", "hidden/system names not allowed"},
		{"readme.txt", "only markdown notes allowed"},
		{"../up.md", "must stay within vault root"},
		{"  ", "name required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := callTool(t, srv, "edit_note", map[string]any{"fileName": tt.name, "content": "x", "confirmed": true})
			assert.True(t, r.IsError)
			assert.Equal(t, "invalid note name: "+tt.want, resultText(r))
		})
	}
}

func TestEditNote_MissingConfirmed(t *testing.T) {
	srv, vault := testServer(t)
	r := callTool(t, srv, "edit_note", map[string]any{"fileName": "a.md", "content": "x"})
	assert.True(t, r.IsError)
	assert.NoFileExists(t, filepath.Join(vault, "a.md"))
}

func TestEditNote_ReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores permission bits")
	}
	srv, vault := testServer(t)
	testutil.WriteNote(t, vault, "ro/a.md", "old")
	dir := filepath.Join(vault, "ro")
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	r := callTool(t, srv, "edit_note", map[string]any{"fileName": "ro/a.md", "content": "new", "confirmed": true})
	assert.True(t, r.IsError)
	assert.Equal(t, "Impossible to edit: note is read-only.", resultText(r))
}

func TestSearchNotes(t *testing.T) {
	db := testutil.TestDB(t)
	require.NoError(t, db.UpsertNote(index.NoteRow{Path: "s.md", Title: "Hit", Checksum: "1"}, "needle in body"))
	srv, _ := testServer(t, WithSearch(db))

	r := callTool(t, srv, "search_notes", map[string]any{"query": "needle"})
	require.False(t, r.IsError, resultText(r))
	assert.Equal(t, "s.md", resultText(r))
	structured, ok := r.StructuredContent.(map[string]any)
	require.True(t, ok)
	results, ok := structured["results"].([]index.SearchResult)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "Hit", results[0].Title)

	r = callTool(t, srv, "search_notes", map[string]any{"query": "absent"})
	assert.Equal(t, "no matching notes", resultText(r))
}

func TestToolRegistration(t *testing.T) {
	srv, _ := testServer(t)
	out := rpc(t, srv, "tools/list", map[string]any{})
	for _, name := range []string{"get_notes", "read_note", "create_note", "edit_note"} {
		assert.Contains(t, out, `"name":"`+name+`"`)
	}
	assert.NotContains(t, out, "search_notes")

	withIndex, _ := testServer(t, WithSearch(testutil.TestDB(t)))
	assert.Contains(t, rpc(t, withIndex, "tools/list", map[string]any{}), `"name":"search_notes"`)
}

func TestToolsCall_ThroughServer(t *testing.T) {
	srv, vault := testServer(t)
	testutil.WriteNote(t, vault, "hello.md", "hi")

	out := rpc(t, srv, "tools/call", map[string]any{
		"name":      "read_note",
		"arguments": map[string]any{"fileName": "hello.md"},
	})
	assert.Contains(t, out, `"text":"hi"`)
}

func TestConventionsResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readConventions(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, ConventionsURI, text.URI)
	assert.Contains(t, text.Text, "confirmed=true")

	assert.Contains(t, rpc(t, srv, "resources/list", map[string]any{}), ConventionsURI)
}
