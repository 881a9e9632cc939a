// Package databaseio owns the in-memory graph and is the only component that
// talks to the storage provider. It loads note files, rebuilds the indexes,
// flushes mutations and manages attachment blobs.
package databaseio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/starford/neno/internal/apperr"
	"github.com/starford/neno/internal/graph"
	"github.com/starford/neno/internal/models"
	"github.com/starford/neno/internal/notefile"
	"github.com/starford/neno/internal/storage"
	"github.com/starford/neno/internal/subwaytext"
)

const (
	// MetadataFile is the graph metadata object at the provider root.
	MetadataFile = "graph.json"
	// FilesDir holds attachment blobs.
	FilesDir = "files"
)

// Engine loads, caches and persists one graph.
type Engine struct {
	provider storage.Provider
	logger   *slog.Logger
	workers  int
	now      func() time.Time
	pool     *ParserPool

	loads singleflight.Group

	mu         sync.Mutex
	graph      *graph.Graph
	generation uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithWorkers sets the parser pool size. Values below 1 select the default.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithClock replaces the time source used for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine over provider and starts its parser pool.
func New(provider storage.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		logger:   slog.Default(),
		now:      models.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = NewParserPool(e.workers)
	return e
}

// Provider returns the storage provider backing the engine.
func (e *Engine) Provider() storage.Provider {
	return e.provider
}

// Close shuts down the parser pool.
func (e *Engine) Close() {
	e.pool.Close()
}

// Evict drops the in-memory graph. The next GetGraph reloads it from storage.
func (e *Engine) Evict() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph = nil
	e.generation++
}

// cached returns the in-memory graph or nil.
func (e *Engine) cached() *graph.Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph
}

// GetGraph returns the in-memory graph, loading it on first use. Concurrent
// callers share one load; a failed load is not cached. The shared load is
// detached from the cancellation of whichever caller started it; each caller
// stops waiting when its own ctx is done.
func (e *Engine) GetGraph(ctx context.Context) (*graph.Graph, error) {
	if g := e.cached(); g != nil {
		return g, nil
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := e.loads.DoChan("graph", func() (any, error) {
		e.mu.Lock()
		if e.graph != nil {
			g := e.graph
			e.mu.Unlock()
			return g, nil
		}
		gen := e.generation
		e.mu.Unlock()

		g, err := e.load(loadCtx)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		if e.generation == gen {
			e.graph = g
		}
		e.mu.Unlock()
		return g, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*graph.Graph), nil
	}
}

func (e *Engine) load(ctx context.Context) (*graph.Graph, error) {
	start := time.Now()
	meta, err := e.readMetadata(ctx)
	if err != nil {
		return nil, err
	}

	raws, err := e.readNoteFiles(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := e.pool.Parse(ctx, raws)
	if err != nil {
		return nil, fmt.Errorf("databaseio: parse notes: %w", err)
	}

	notes := make(map[string]*models.ExistingNote, len(parsed))
	blocks := make(map[string][]subwaytext.Block, len(parsed))
	for _, p := range parsed {
		if p.Err != nil {
			e.logger.Warn("databaseio: dropped unparseable note",
				slog.String("slug", p.Slug),
				slog.String("error", p.Err.Error()))
			continue
		}
		notes[p.Slug] = p.Note
		blocks[p.Slug] = p.Blocks
	}

	g := graph.FromParsed(meta, notes, blocks)
	e.logger.Info("databaseio: graph loaded",
		slog.Int("notes", len(notes)),
		slog.Int("dropped", len(raws)-len(notes)),
		slog.Duration("took", time.Since(start)))
	return g, nil
}

// readNoteFiles reads every note file at the provider root, using the pool
// size as the I/O concurrency limit.
func (e *Engine) readNoteFiles(ctx context.Context) ([]RawNote, error) {
	names, err := e.provider.ListDirectory(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("databaseio: list graph: %w", err)
	}

	var (
		raws  []RawNote
		files []string
	)
	for _, name := range names {
		if s, ok := notefile.SlugFromFilename(name); ok {
			raws = append(raws, RawNote{Slug: s})
			files = append(files, name)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.pool.Size())
	for i := range raws {
		eg.Go(func() error {
			content, err := e.provider.ReadObjectAsString(egCtx, files[i])
			if err != nil {
				return fmt.Errorf("databaseio: read %s: %w", files[i], err)
			}
			raws[i].Raw = content
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return raws, nil
}

// FlushChanges persists g: the metadata always, then the note files of slugs
// (all notes when none are given). Slugs no longer in the graph have their
// file removed. UpdatedAt strictly increases with every flush.
func (e *Engine) FlushChanges(ctx context.Context, g *graph.Graph, slugs ...string) error {
	if err := e.FlushMetadata(ctx, g); err != nil {
		return err
	}
	if len(slugs) == 0 {
		slugs = g.Slugs()
	}
	for _, s := range slugs {
		name := notefile.Filename(s)
		note, ok := g.Notes[s]
		if !ok {
			err := e.provider.RemoveObject(ctx, name)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("databaseio: remove %s: %w", name, err)
			}
			continue
		}
		if err := e.provider.WriteObject(ctx, name, notefile.Serialize(note)); err != nil {
			return fmt.Errorf("databaseio: write %s: %w", name, err)
		}
	}
	return nil
}

// FlushMetadata bumps UpdatedAt and writes graph.json without touching note
// files.
func (e *Engine) FlushMetadata(ctx context.Context, g *graph.Graph) error {
	e.mu.Lock()
	now := e.now()
	if !now.After(g.Metadata.UpdatedAt) {
		now = g.Metadata.UpdatedAt.Add(time.Millisecond)
	}
	g.Metadata.UpdatedAt = now
	meta := g.Metadata
	e.mu.Unlock()

	return e.writeMetadata(ctx, meta)
}

// readMetadata decodes graph.json. A missing file starts a fresh graph whose
// metadata is persisted right away.
func (e *Engine) readMetadata(ctx context.Context) (models.GraphMetadata, error) {
	raw, err := e.provider.ReadObjectAsString(ctx, MetadataFile)
	if errors.Is(err, storage.ErrNotFound) {
		meta := models.NewGraphMetadata(e.now())
		if err := e.writeMetadata(ctx, meta); err != nil {
			return models.GraphMetadata{}, err
		}
		e.logger.Info("databaseio: created graph")
		return meta, nil
	}
	if err != nil {
		return models.GraphMetadata{}, fmt.Errorf("databaseio: read metadata: %w", err)
	}
	var meta models.GraphMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return models.GraphMetadata{}, fmt.Errorf("databaseio: decode metadata: %w", err)
	}
	return meta, nil
}

func (e *Engine) writeMetadata(ctx context.Context, meta models.GraphMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("databaseio: encode metadata: %w", err)
	}
	if err := e.provider.WriteObject(ctx, MetadataFile, string(data)); err != nil {
		return fmt.Errorf("databaseio: write metadata: %w", err)
	}
	return nil
}

// GetRawNote returns the stored note file of slug.
func (e *Engine) GetRawNote(ctx context.Context, slug string) (string, error) {
	raw, err := e.provider.ReadObjectAsString(ctx, notefile.Filename(slug))
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("databaseio: raw note %s: %w", slug, apperr.ErrNoteNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("databaseio: raw note %s: %w", slug, err)
	}
	return raw, nil
}
