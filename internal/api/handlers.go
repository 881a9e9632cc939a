package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/neno/internal/apperr"
	"github.com/starford/neno/internal/noteservice"
	"github.com/starford/neno/internal/search"
)

// Handler holds the API route handlers.
type Handler struct {
	svc    *noteservice.Service
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *noteservice.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// slugParam returns the slug matched by a trailing wildcard. Encoded slashes
// are accepted.
func slugParam(r *http.Request) string {
	raw := strings.Trim(chi.URLParam(r, "*"), "/")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func requireSlug(w http.ResponseWriter, r *http.Request) (string, bool) {
	s := slugParam(r)
	if s == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("slug is required"))
		return "", false
	}
	return s, true
}

// ListNotes handles GET /notes?q=&sort=&page=&limit=&caseSensitive=.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	caseSensitive, _ := strconv.ParseBool(q.Get("caseSensitive"))

	res, err := h.svc.Search(r.Context(), search.Request{
		Query:         q.Get("q"),
		CaseSensitive: caseSensitive,
		SortMode:      search.ParseSortMode(q.Get("sort")),
		Page:          page,
		Limit:         limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetNote handles GET /notes/{slug}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSlug(w, r)
	if !ok {
		return
	}
	note, err := h.svc.Get(r.Context(), s)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", note.ETag)
	writeJSON(w, http.StatusOK, note)
}

// GetRawNote handles GET /raw/{slug} and returns the stored note file.
func (h *Handler) GetRawNote(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSlug(w, r)
	if !ok {
		return
	}
	raw, err := h.svc.GetRaw(r.Context(), s)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(raw))
}

// PutNote handles PUT /notes. A request without an existing slug creates a
// note; If-Match guards updates against concurrent edits.
func (h *Handler) PutNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteBytes)
	var req PutNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	note, err := h.svc.Put(r.Context(), req.toService(ifMatch(r)))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", note.ETag)
	writeJSON(w, http.StatusOK, note)
}

// ifMatch returns the If-Match header as a quoted entity tag.
func ifMatch(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("If-Match"))
	switch {
	case v == "*":
		return ""
	case v == "" || strings.HasPrefix(v, `"`):
		return v
	}
	return `"` + v + `"`
}

// DeleteNote handles DELETE /notes/{slug}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSlug(w, r)
	if !ok {
		return
	}
	if err := h.svc.Remove(r.Context(), s); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListPins handles GET /pins.
func (h *Handler) ListPins(w http.ResponseWriter, r *http.Request) {
	pins, err := h.svc.Pins(r.Context())
	h.writePins(w, r, pins, err)
}

// Pin handles PUT /pins/{slug}.
func (h *Handler) Pin(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSlug(w, r)
	if !ok {
		return
	}
	pins, err := h.svc.Pin(r.Context(), s)
	h.writePins(w, r, pins, err)
}

// Unpin handles DELETE /pins/{slug}.
func (h *Handler) Unpin(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSlug(w, r)
	if !ok {
		return
	}
	pins, err := h.svc.Unpin(r.Context(), s)
	h.writePins(w, r, pins, err)
}

func (h *Handler) writePins(w http.ResponseWriter, r *http.Request, pins []NoteListItem, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PinsResponse{Pins: pins})
}

// Export handles GET /export?withFiles=. Without files the response is
// graph.json, with files a zip archive of the graph.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	withFiles, _ := strconv.ParseBool(r.URL.Query().Get("withFiles"))
	rc, err := h.svc.Export(r.Context(), withFiles)
	if err != nil {
		if errors.Is(err, apperr.ErrNotSupportedByStorageProvider) {
			writeJSON(w, http.StatusNotImplemented, errorBody("archive export is not supported by this storage provider"))
			return
		}
		h.writeError(w, r, err)
		return
	}
	defer rc.Close()

	name, ctype := "graph.json", "application/json"
	if withFiles {
		name, ctype = "graph.zip", "application/zip"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	h.copyBody(w, r, rc)
}
