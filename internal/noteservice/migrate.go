package noteservice

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/starford/neno/internal/graph"
	"github.com/starford/neno/internal/models"
)

// Migrate normalises a loaded graph: duplicate flags, empty custom values,
// missing timestamps, pins to missing notes and duplicate pin or file
// records. Storage is only written when something changed, so running it
// twice leaves the second run without effect.
func (s *Service) Migrate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.engine.GetGraph(ctx)
	if err != nil {
		return false, err
	}

	var changed []string
	for _, sl := range g.Slugs() {
		if migrateNote(g.Notes[sl], s.now) {
			changed = append(changed, sl)
		}
	}
	metaChanged := migrateMetadata(g)
	if len(changed) == 0 && !metaChanged {
		s.logger.Info("noteservice: migration not needed")
		return false, nil
	}

	if len(changed) == 0 {
		err = s.flushMetadata(ctx, g)
	} else {
		err = s.flushChanges(ctx, g, changed...)
	}
	if err != nil {
		return false, err
	}
	s.logger.Info("noteservice: graph migrated",
		slog.Int("notes", len(changed)),
		slog.Bool("metadata", metaChanged))
	return true, nil
}

func migrateNote(n *models.ExistingNote, now func() time.Time) bool {
	changed := false
	m := &n.Meta

	if flags := dedupeFlags(m.Flags); len(flags) != len(m.Flags) {
		m.Flags = flags
		changed = true
	}
	for k, v := range m.Custom {
		if v == "" {
			delete(m.Custom, k)
			changed = true
		}
	}
	switch {
	case m.CreatedAt.IsZero() && m.UpdatedAt.IsZero():
		t := now()
		m.CreatedAt, m.UpdatedAt = t, t
		changed = true
	case m.CreatedAt.IsZero():
		m.CreatedAt = m.UpdatedAt
		changed = true
	case m.UpdatedAt.IsZero():
		m.UpdatedAt = m.CreatedAt
		changed = true
	}
	if m.ContentType == "" {
		m.ContentType = models.DefaultContentType
		changed = true
	}
	return changed
}

func migrateMetadata(g *graph.Graph) bool {
	meta := &g.Metadata
	pins := make([]string, 0, len(meta.PinnedNotes))
	for _, p := range meta.PinnedNotes {
		if g.Has(p) && !slices.Contains(pins, p) {
			pins = append(pins, p)
		}
	}
	files := make([]models.GraphFile, 0, len(meta.Files))
	seen := make(map[string]struct{}, len(meta.Files))
	for _, f := range meta.Files {
		if _, ok := seen[f.FileID]; ok {
			continue
		}
		seen[f.FileID] = struct{}{}
		files = append(files, f)
	}
	changed := len(pins) != len(meta.PinnedNotes) || len(files) != len(meta.Files)
	meta.PinnedNotes, meta.Files = pins, files
	return changed
}
