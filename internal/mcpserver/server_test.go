package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/neno/internal/noteservice"
	"github.com/starford/neno/internal/search"
	"github.com/starford/neno/internal/testutil"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testServer(t *testing.T) *Server {
	t.Helper()
	e, _ := testutil.MemoryEngine(t)
	svc := noteservice.New(e, noteservice.WithLogger(testutil.Logger()))
	return New(svc, "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper; dispatch to the handlers directly.
	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "get_stats":
		result, err = srv.getStats(ctx, req)
	case "get_note_contract":
		result, err = srv.getNoteContract(ctx, req)
	case "upload_file":
		result, err = srv.uploadFile(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
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

func TestCreateAndReadNote(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "create_note", map[string]any{"content": "# Go Tips\nHello"})
	if r.IsError {
		t.Fatalf("create failed: %s", resultText(r))
	}
	if text := resultText(r); text != "created: go-tips" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]any{"slug": "go-tips"})
	if text := resultText(r); text != "# Go Tips\nHello" {
		t.Errorf("read result = %q", text)
	}
}

func TestCreateNoteExplicitSlug(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "create_note", map[string]any{"content": "x", "slug": "tools/go"})
	if text := resultText(r); text != "created: tools/go" {
		t.Fatalf("create result = %q", text)
	}
	r = callTool(t, srv, "create_note", map[string]any{"content": "y", "slug": "tools/go"})
	if !r.IsError {
		t.Error("expected error for an existing slug")
	}
}

func TestCreateNoteRequiresContent(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "create_note", map[string]any{})
	if !r.IsError {
		t.Error("expected error without content")
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "read_note", map[string]any{"slug": "nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestSearchNotes(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"content": "# Alpha\nfirst"})
	callTool(t, srv, "create_note", map[string]any{"content": "# Beta\nsecond"})

	r := callTool(t, srv, "search_notes", map[string]any{"query": "alp", "sort": "title_ascending"})
	var page search.Page
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.NumberOfResults != 1 || page.Results[0].Slug != "alpha" {
		t.Errorf("search results = %+v", page.Results)
	}
}

func TestGetBacklinks(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"content": "target", "slug": "target"})
	callTool(t, srv, "create_note", map[string]any{"content": "see /target", "slug": "a"})
	callTool(t, srv, "create_note", map[string]any{"content": "and [[Target]]", "slug": "b"})

	r := callTool(t, srv, "get_backlinks", map[string]any{"slug": "target"})
	if text := resultText(r); text != "a\nb" {
		t.Errorf("backlinks = %q", text)
	}

	r = callTool(t, srv, "get_backlinks", map[string]any{"slug": "a"})
	if text := resultText(r); text != "no backlinks found" {
		t.Errorf("backlinks = %q", text)
	}
}

func TestGetStats(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"content": "one", "slug": "one"})
	callTool(t, srv, "create_note", map[string]any{"content": "/one", "slug": "two"})

	r := callTool(t, srv, "get_stats", nil)
	var st noteservice.Stats
	if err := json.Unmarshal([]byte(resultText(r)), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.NumberOfAllNotes != 2 || st.NumberOfLinks != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestGetNoteContract(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_note_contract", nil)
	if !strings.Contains(resultText(r), "/files/") {
		t.Error("contract should describe file references")
	}
}

func TestUploadFileDataURI(t *testing.T) {
	srv := testServer(t)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)

	r := callTool(t, srv, "upload_file", map[string]any{"url": uri, "filename": "Scan.PNG"})
	if r.IsError {
		t.Fatalf("upload failed: %s", resultText(r))
	}
	var res uploadResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasSuffix(res.FileID, ".png") {
		t.Errorf("fileId = %q", res.FileID)
	}
	if res.Name != "Scan.PNG" || res.Size != int64(len(pngHeader)) {
		t.Errorf("result = %+v", res)
	}
	if res.Reference != "/files/"+res.FileID {
		t.Errorf("reference = %q", res.Reference)
	}
}

func TestUploadFileDetectsExtension(t *testing.T) {
	srv := testServer(t)
	uri := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))

	r := callTool(t, srv, "upload_file", map[string]any{"url": uri})
	if r.IsError {
		t.Fatalf("upload failed: %s", resultText(r))
	}
	var res uploadResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Name != "file.txt" {
		t.Errorf("name = %q", res.Name)
	}
}

func TestUploadFileRejects(t *testing.T) {
	srv := testServer(t)
	cases := map[string]map[string]any{
		"mismatched content": {
			"url":      "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not a png")),
			"filename": "x.png",
		},
		"unsupported extension": {
			"url":      "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("echo")),
			"filename": "run.sh",
		},
		"plain data URI": {"url": "data:text/plain,hello"},
		"loopback":       {"url": "http://127.0.0.1/secret.png"},
		"metadata":       {"url": "http://169.254.169.254/latest/meta-data"},
		"scheme":         {"url": "ftp://example.com/a.png"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			r := callTool(t, srv, "upload_file", args)
			if !r.IsError {
				t.Errorf("expected error, got %q", resultText(r))
			}
		})
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		explicit, url, ext, want string
	}{
		{"../../etc/a.png", "", "", "a.png"},
		{"", "https://example.com/img/cat.jpg?x=1", "", "cat.jpg"},
		{"", "https://example.com/download", ".pdf", "file.pdf"},
		{"notes", "data:x", ".txt", "notes.txt"},
	}
	for _, tt := range tests {
		got, err := fileName(tt.explicit, tt.url, tt.ext)
		if err != nil || got != tt.want {
			t.Errorf("fileName(%q, %q, %q) = %q, %v; want %q", tt.explicit, tt.url, tt.ext, got, err, tt.want)
		}
	}
	if _, err := fileName("", "https://example.com/download", ""); err == nil {
		t.Error("expected error without any extension")
	}
}
