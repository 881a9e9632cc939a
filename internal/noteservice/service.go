// Package noteservice implements the note operations exposed to adapters on
// top of the persistence engine. Mutations are serialised by one lock and
// flushed before they return.
package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/starford/neno/internal/apperr"
	"github.com/starford/neno/internal/checksum"
	"github.com/starford/neno/internal/databaseio"
	"github.com/starford/neno/internal/graph"
	"github.com/starford/neno/internal/models"
	"github.com/starford/neno/internal/notefile"
	"github.com/starford/neno/internal/search"
	"github.com/starford/neno/internal/slug"
	"github.com/starford/neno/internal/subwaytext"
)

// Change kinds passed to listeners.
const (
	ChangeSaved   = "saved"
	ChangeRemoved = "removed"
)

// ChangeListener is notified after a note mutation has been flushed.
type ChangeListener func(kind, slug string)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Meta               models.NoteMeta       `json:"meta"`
	Content            string                `json:"content"`
	Title              string                `json:"title"`
	Blocks             []subwaytext.Block    `json:"blocks"`
	OutgoingLinks      []search.NoteListItem `json:"outgoingLinks"`
	Backlinks          []search.NoteListItem `json:"backlinks"`
	Files              []models.GraphFile    `json:"files"`
	NumberOfCharacters int                   `json:"numberOfCharacters"`
	ETag               string                `json:"etag"`
}

// PutRequest creates or updates a note. An empty Slug, or one that does not
// exist yet, creates a note.
type PutRequest struct {
	Slug        string
	Content     string
	Custom      map[string]string
	Flags       []string
	ContentType string
	// IfMatch, when set, must equal the current ETag of the note.
	IfMatch string
	// ChangeSlugTo renames an existing note.
	ChangeSlugTo string
}

// Service coordinates the engine, the graph and the search index.
type Service struct {
	mu        sync.RWMutex
	engine    *databaseio.Engine
	logger    *slog.Logger
	now       func() time.Time
	listeners []ChangeListener
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock replaces the time source for note timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithChangeListener registers fn for note changes.
func WithChangeListener(fn ChangeListener) Option {
	return func(s *Service) {
		s.listeners = append(s.listeners, fn)
	}
}

// New creates a note service.
func New(engine *databaseio.Engine, opts ...Option) *Service {
	s := &Service{engine: engine, logger: slog.Default(), now: models.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadLocker returns the read side of the mutation lock, for components that
// inspect the graph outside the service.
func (s *Service) ReadLocker() sync.Locker {
	return s.mu.RLocker()
}

func (s *Service) notify(kind string, slugs ...string) {
	for _, fn := range s.listeners {
		for _, sl := range slugs {
			fn(kind, sl)
		}
	}
}

// Get returns a note with its blocks, links and referenced files.
func (s *Service) Get(ctx context.Context, slug string) (*NoteDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, err := s.engine.GetGraph(ctx)
	if err != nil {
		return nil, err
	}
	return detail(g, slug)
}

// GetRaw returns the stored note file.
func (s *Service) GetRaw(ctx context.Context, slug string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.GetRawNote(ctx, slug)
}

// Put creates or updates a note and flushes it.
func (s *Service) Put(ctx context.Context, req PutRequest) (*NoteDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.engine.GetGraph(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	existing, exists := g.Notes[req.Slug]
	var note *models.ExistingNote
	if exists {
		if req.IfMatch != "" && req.IfMatch != checksum.ETag(notefile.Serialize(existing)) {
			return nil, fmt.Errorf("noteservice: put %s: %w", req.Slug, apperr.ErrConflict)
		}
		meta := existing.Meta
		meta.UpdatedAt = now
		if meta.CreatedAt.IsZero() {
			meta.CreatedAt = now
		}
		note = &models.ExistingNote{Meta: meta, Content: req.Content}
	} else {
		newSlug, err := s.newSlug(g, req)
		if err != nil {
			return nil, err
		}
		note = &models.ExistingNote{
			Meta:    models.NoteMeta{Slug: newSlug, CreatedAt: now, UpdatedAt: now},
			Content: req.Content,
		}
	}
	note.Meta.Custom = pruneCustom(req.Custom)
	note.Meta.Flags = dedupeFlags(req.Flags)
	note.Meta.ContentType = req.ContentType
	if note.Meta.ContentType == "" {
		note.Meta.ContentType = models.DefaultContentType
	}

	flush := []string{note.Meta.Slug}
	if exists && req.ChangeSlugTo != "" {
		target := slug.Normalize(req.ChangeSlugTo)
		if target == "" {
			return nil, fmt.Errorf("noteservice: rename %s: %w", req.Slug, apperr.ErrInvalidInput)
		}
		if target != req.Slug {
			if g.Has(target) {
				return nil, fmt.Errorf("noteservice: rename %s to %s: %w", req.Slug, target, apperr.ErrAlreadyExists)
			}
			g.RemoveNote(req.Slug)
			note.Meta.Slug = target
			for i, p := range g.Metadata.PinnedNotes {
				if p == req.Slug {
					g.Metadata.PinnedNotes[i] = target
				}
			}
			flush = append(flush, req.Slug)
		}
	}

	g.SetNote(note)
	if err := s.flushChanges(ctx, g, flush...); err != nil {
		return nil, err
	}
	s.logger.Debug("noteservice: note saved", slog.String("slug", note.Meta.Slug))
	if len(flush) > 1 {
		s.notify(ChangeRemoved, flush[1:]...)
	}
	s.notify(ChangeSaved, note.Meta.Slug)
	return detail(g, note.Meta.Slug)
}

// newSlug picks the slug of a note being created: the requested one when
// given, otherwise one derived from the content.
func (s *Service) newSlug(g *graph.Graph, req PutRequest) (string, error) {
	if req.Slug == "" {
		return slug.Unique(slug.Sluggify(slug.InferTitle(req.Content)), g.Has), nil
	}
	requested := slug.Normalize(req.Slug)
	if requested == "" || slug.IsFileSlug(requested) {
		return "", fmt.Errorf("noteservice: slug %q: %w", req.Slug, apperr.ErrInvalidInput)
	}
	if g.Has(requested) {
		return "", fmt.Errorf("noteservice: slug %s: %w", requested, apperr.ErrAlreadyExists)
	}
	return requested, nil
}

// Remove deletes a note and unpins it.
func (s *Service) Remove(ctx context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.engine.GetGraph(ctx)
	if err != nil {
		return err
	}
	if !g.RemoveNote(slug) {
		return fmt.Errorf("noteservice: remove %s: %w", slug, apperr.ErrNoteNotFound)
	}
	g.Metadata.PinnedNotes = slices.DeleteFunc(g.Metadata.PinnedNotes, func(p string) bool { return p == slug })
	if err := s.flushChanges(ctx, g, slug); err != nil {
		return err
	}
	s.logger.Debug("noteservice: note removed", slog.String("slug", slug))
	s.notify(ChangeRemoved, slug)
	return nil
}

// Search runs a query over the graph.
func (s *Service) Search(ctx context.Context, req search.Request) (search.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, err := s.engine.GetGraph(ctx)
	if err != nil {
		return search.Page{}, err
	}
	return search.Run(g, req), nil
}

func detail(g *graph.Graph, s string) (*NoteDetail, error) {
	n, ok := g.Notes[s]
	if !ok {
		return nil, fmt.Errorf("noteservice: note %s: %w", s, apperr.ErrNoteNotFound)
	}
	d := &NoteDetail{
		Meta:               n.Meta,
		Content:            n.Content,
		Title:              g.Title(s),
		Blocks:             g.Indexes.Blocks[s],
		OutgoingLinks:      project(g, g.Outgoing(s)),
		Backlinks:          project(g, g.Incoming(s)),
		Files:              []models.GraphFile{},
		NumberOfCharacters: utf8.RuneCountInString(n.Content),
		ETag:               checksum.ETag(notefile.Serialize(n)),
	}
	for _, id := range g.Files(s) {
		if f, ok := g.Metadata.FindFile(id); ok {
			d.Files = append(d.Files, f)
		}
	}
	return d, nil
}

func project(g *graph.Graph, slugs []string) []search.NoteListItem {
	out := make([]search.NoteListItem, 0, len(slugs))
	for _, s := range slugs {
		out = append(out, search.Project(g, s))
	}
	return out
}

func pruneCustom(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func dedupeFlags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, f := range in {
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// flushChanges writes the given notes. A failed flush leaves the cached graph
// ahead of storage, so it is evicted and the next access reloads from disk.
func (s *Service) flushChanges(ctx context.Context, g *graph.Graph, slugs ...string) error {
	if err := s.engine.FlushChanges(ctx, g, slugs...); err != nil {
		s.evictAfter(err)
		return err
	}
	return nil
}

// flushMetadata is flushChanges for graph.json alone.
func (s *Service) flushMetadata(ctx context.Context, g *graph.Graph) error {
	if err := s.engine.FlushMetadata(ctx, g); err != nil {
		s.evictAfter(err)
		return err
	}
	return nil
}

func (s *Service) evictAfter(err error) {
	s.engine.Evict()
	s.logger.Warn("noteservice: flush failed, graph evicted", slog.String("error", err.Error()))
}
