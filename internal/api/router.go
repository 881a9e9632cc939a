package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/neno/internal/noteservice"
)

// NewRouter mounts the graph API. With authEnabled every route requires the
// bearer token. events, if non-nil, is served at GET /events.
// Slugs may contain "/", so note and pin routes take the rest of the path.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, events http.Handler, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}
	h := NewHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes", h.ListNotes)
	r.Put("/notes", h.PutNote)
	r.Get("/notes/*", h.GetNote)
	r.Delete("/notes/*", h.DeleteNote)
	r.Get("/raw/*", h.GetRawNote)

	r.Get("/stats", h.Stats)

	r.Get("/pins", h.ListPins)
	r.Put("/pins/*", h.Pin)
	r.Delete("/pins/*", h.Unpin)

	r.Get("/files", h.ListFiles)
	r.Post("/files", h.UploadFile)
	r.Get("/files/{fileID}", h.GetFile)
	r.Delete("/files/{fileID}", h.DeleteFile)

	r.Get("/export", h.Export)

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}
	return r
}
