// Package testutil provides shared test helpers for setting up graphs and engines.
package testutil

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/starford/neno/internal/databaseio"
	"github.com/starford/neno/internal/models"
	"github.com/starford/neno/internal/storage"
)

// Logger returns a logger that discards everything below error level.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// MemoryEngine creates an engine over an empty in-memory provider. The
// engine is closed when the test ends.
func MemoryEngine(t *testing.T) (*databaseio.Engine, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	e := databaseio.New(mem, databaseio.WithLogger(Logger()), databaseio.WithWorkers(2))
	t.Cleanup(e.Close)
	return e, mem
}

// FSEngine creates an engine over a temporary graph directory.
func FSEngine(t *testing.T) (string, *storage.FS, *databaseio.Engine) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	e := databaseio.New(fs, databaseio.WithLogger(Logger()), databaseio.WithWorkers(2))
	t.Cleanup(e.Close)
	return dir, fs, e
}

// Note builds a note with default metadata.
func Note(slug, content string) *models.ExistingNote {
	return &models.ExistingNote{
		Meta: models.NoteMeta{
			Slug:        slug,
			Custom:      map[string]string{},
			Flags:       []string{},
			ContentType: models.DefaultContentType,
		},
		Content: content,
	}
}

// NoteAt is Note with creation and update times set to at.
func NoteAt(slug, content string, at time.Time) *models.ExistingNote {
	n := Note(slug, content)
	n.Meta.CreatedAt = at
	n.Meta.UpdatedAt = at
	return n
}
