package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/neno/internal/storage"
)

var errBadRange = errors.New("invalid range")

// ListFiles handles GET /files.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.GetFiles(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FilesResponse{Files: files})
}

// UploadFile handles POST /files (multipart/form-data, field "file").
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	f, err := h.svc.AddFile(r.Context(), header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// DeleteFile handles DELETE /files/{fileID}.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFile(r.Context(), chi.URLParam(r, "fileID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFile handles GET /files/{fileID}. A single "bytes=" range is honoured
// with 206 Partial Content.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	meta, err := h.svc.GetFile(r.Context(), fileID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rng, err := parseRange(r.Header.Get("Range"), meta.Size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", meta.Size))
		writeJSON(w, http.StatusRequestedRangeNotSatisfiable, errorBody(err.Error()))
		return
	}
	rc, err := h.svc.OpenFile(r.Context(), fileID, rng)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer rc.Close()

	ctype := mime.TypeByExtension(path.Ext(fileID))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	hdr := w.Header()
	hdr.Set("Content-Type", ctype)
	hdr.Set("Accept-Ranges", "bytes")
	hdr.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", meta.Name))
	status := http.StatusOK
	length := meta.Size
	if rng != nil {
		status = http.StatusPartialContent
		length = rng.Length()
		hdr.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, meta.Size))
	}
	hdr.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	h.copyBody(w, r, rc)
}

// parseRange reads a single byte range such as "bytes=0-99", "bytes=100-" or
// "bytes=-50". An empty header selects the whole object.
func parseRange(header string, size int64) (*storage.Range, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil, errBadRange
	}
	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, errBadRange
	}

	var start, end int64
	switch {
	case first == "":
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return nil, errBadRange
		}
		start, end = max(size-n, 0), size-1
	default:
		n, err := strconv.ParseInt(first, 10, 64)
		if err != nil || n < 0 {
			return nil, errBadRange
		}
		start, end = n, size-1
		if last != "" {
			m, err := strconv.ParseInt(last, 10, 64)
			if err != nil || m < start {
				return nil, errBadRange
			}
			end = min(m, size-1)
		}
	}
	if start >= size {
		return nil, errBadRange
	}
	return &storage.Range{Start: start, End: end}, nil
}

func (h *Handler) copyBody(w io.Writer, r *http.Request, src io.Reader) {
	if _, err := io.Copy(w, src); err != nil {
		h.logger.Warn("api: response copy interrupted",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
}
