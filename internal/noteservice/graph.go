package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/neno/internal/apperr"
	"github.com/starford/neno/internal/graph"
	"github.com/starford/neno/internal/models"
	"github.com/starford/neno/internal/search"
	"github.com/starford/neno/internal/storage"
)

// Stats is the graph summary with storage sizes.
type Stats struct {
	graph.Stats
	Size GraphSize `json:"size"`
}

// GraphSize reports stored bytes.
type GraphSize struct {
	Graph int64 `json:"graph"`
	Files int64 `json:"files"`
}

// Stats computes the graph summary.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, err := s.engine.GetGraph(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Stats: graph.ComputeStats(g)}
	if st.Size.Graph, err = s.engine.GetSizeOfGraph(ctx); err != nil {
		return Stats{}, err
	}
	if st.Size.Files, err = s.engine.GetSizeOfGraphFiles(ctx); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Pins returns the pinned notes in pin order.
func (s *Service) Pins(ctx context.Context) ([]search.NoteListItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, err := s.engine.GetGraph(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]search.NoteListItem, 0, len(g.Metadata.PinnedNotes))
	for _, p := range g.Metadata.PinnedNotes {
		if g.Has(p) {
			out = append(out, search.Project(g, p))
		}
	}
	return out, nil
}

// Pin appends slug to the pinned notes. Pinning twice is a no-op.
func (s *Service) Pin(ctx context.Context, slug string) ([]search.NoteListItem, error) {
	if err := s.updatePins(ctx, slug, func(pins []string) []string {
		if slices.Contains(pins, slug) {
			return pins
		}
		return append(pins, slug)
	}); err != nil {
		return nil, err
	}
	return s.Pins(ctx)
}

// Unpin removes slug from the pinned notes.
func (s *Service) Unpin(ctx context.Context, slug string) ([]search.NoteListItem, error) {
	if err := s.updatePins(ctx, slug, func(pins []string) []string {
		return slices.DeleteFunc(pins, func(p string) bool { return p == slug })
	}); err != nil {
		return nil, err
	}
	return s.Pins(ctx)
}

func (s *Service) updatePins(ctx context.Context, slug string, fn func([]string) []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.engine.GetGraph(ctx)
	if err != nil {
		return err
	}
	if !g.Has(slug) {
		return fmt.Errorf("noteservice: pin %s: %w", slug, apperr.ErrNoteNotFound)
	}
	g.Metadata.PinnedNotes = fn(g.Metadata.PinnedNotes)
	return s.flushMetadata(ctx, g)
}

// AddFile stores an attachment under a fresh file ID that keeps the
// lowercased extension of name.
func (s *Service) AddFile(ctx context.Context, name string, r io.Reader) (models.GraphFile, error) {
	if strings.TrimSpace(name) == "" {
		return models.GraphFile{}, fmt.Errorf("noteservice: add file: empty name: %w", apperr.ErrInvalidInput)
	}
	fileID := uuid.NewString() + strings.ToLower(path.Ext(name))

	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.engine.GetGraph(ctx)
	if err != nil {
		return models.GraphFile{}, err
	}
	size, err := s.engine.AddFile(ctx, fileID, r)
	if err != nil {
		return models.GraphFile{}, err
	}
	f := models.GraphFile{FileID: fileID, Name: path.Base(name), Size: size, CreatedAt: s.now()}
	g.Metadata.Files = append(g.Metadata.Files, f)
	if err := s.flushMetadata(ctx, g); err != nil {
		if derr := s.engine.DeleteFile(ctx, fileID); derr != nil {
			s.logger.Warn("noteservice: orphaned file", slog.String("file_id", fileID), slog.String("error", derr.Error()))
		}
		return models.GraphFile{}, err
	}
	s.logger.Info("noteservice: file added",
		slog.String("file_id", fileID),
		slog.Int64("size", size))
	return f, nil
}

// DeleteFile removes an attachment and its record.
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.engine.GetGraph(ctx)
	if err != nil {
		return err
	}
	if _, ok := g.Metadata.FindFile(fileID); !ok {
		return fmt.Errorf("noteservice: delete file %s: %w", fileID, apperr.ErrFileNotFound)
	}
	if err := s.engine.DeleteFile(ctx, fileID); err != nil && !errors.Is(err, apperr.ErrFileNotFound) {
		return err
	}
	g.Metadata.Files = slices.DeleteFunc(g.Metadata.Files, func(f models.GraphFile) bool { return f.FileID == fileID })
	return s.flushMetadata(ctx, g)
}

// GetFiles returns the attachment records.
func (s *Service) GetFiles(ctx context.Context) ([]models.GraphFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, err := s.engine.GetGraph(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(g.Metadata.Files), nil
}

// GetFile returns one attachment record.
func (s *Service) GetFile(ctx context.Context, fileID string) (models.GraphFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, err := s.engine.GetGraph(ctx)
	if err != nil {
		return models.GraphFile{}, err
	}
	f, ok := g.Metadata.FindFile(fileID)
	if !ok {
		return models.GraphFile{}, fmt.Errorf("noteservice: file %s: %w", fileID, apperr.ErrFileNotFound)
	}
	return f, nil
}

// OpenFile streams an attachment, optionally restricted to rng.
func (s *Service) OpenFile(ctx context.Context, fileID string, rng *storage.Range) (io.ReadCloser, error) {
	return s.engine.GetReadableFileStream(ctx, fileID, rng)
}

// Export streams graph.json, or with withFiles a zip of the whole graph.
func (s *Service) Export(ctx context.Context, withFiles bool) (io.ReadCloser, error) {
	return s.engine.GetReadableGraphStream(ctx, withFiles)
}
