// Package mcpserver exposes the note graph to LLM clients over the Model
// Context Protocol (stdio transport).
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/neno/internal/noteservice"
	"github.com/starford/neno/internal/search"
)

const maxSearchResults = 20

// Server registers the note tools on an MCP server.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates an MCP server backed by svc.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"neno",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes. Bare words match titles and slugs; "+
			"ft:<text> searches content; has-url:, has-file:, has-flag:, has-block:, has-media:, "+
			"exact:, duplicates:url|title and $key:value filters are supported and combine with AND."),
		mcp.WithString("query", mcp.Description("Query string; empty lists all notes")),
		mcp.WithString("sort", mcp.Description("Sort mode, e.g. UPDATE_DATE_DESCENDING or TITLE_ASCENDING")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the content of a note."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Note slug, e.g. tools/go")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. Content must follow the note format; read "+
			NoteFormatURI+" or call get_note_contract first."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note content in subwaytext")),
		mcp.WithString("slug", mcp.Description("Optional slug; derived from the title when empty")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("List the notes that link to a note."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Slug of the linked note")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Summarise the graph: notes, links, files, pins, hubs and components."),
	), s.getStats)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Return the note format. Call this before writing notes."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("upload_file",
		mcp.WithDescription("Store a file from an http(s) URL or a base64 data URI and return "+
			"the /files/ reference to paste into a note."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI")),
		mcp.WithString("filename", mcp.Description("Optional file name; its extension selects the type")),
	), s.uploadFile)

	s.mcp.AddResource(
		mcp.NewResource(NoteFormatURI, "Note Format",
			mcp.WithResourceDescription("How note content is structured and linked."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio serves MCP on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := s.svc.Search(ctx, search.Request{
		Query:    req.GetString("query", ""),
		SortMode: search.ParseSortMode(req.GetString("sort", "")),
		Limit:    maxSearchResults,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(page)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.Get(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", slug)), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slug := req.GetString("slug", "")
	if slug != "" {
		if _, err := s.svc.Get(ctx, slug); err == nil {
			return mcp.NewToolResultError(fmt.Sprintf("note already exists: %s", slug)), nil
		}
	}
	note, err := s.svc.Put(ctx, noteservice.PutRequest{Slug: slug, Content: content})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("created: " + note.Meta.Slug), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.Get(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(note.Backlinks) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	slugs := make([]string, 0, len(note.Backlinks))
	for _, b := range note.Backlinks {
		slugs = append(slugs, b.Slug)
	}
	return mcp.NewToolResultText(strings.Join(slugs, "\n")), nil
}

func (s *Server) getStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) getNoteContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      NoteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
