package databaseio

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/neno/internal/notefile"
	"github.com/starford/neno/internal/storage"
)

const watchDebounce = 200 * time.Millisecond

// EvictCallback is called after the watcher evicted the graph. names are the
// changed objects that differed from memory.
type EvictCallback func(names []string)

// Watch observes the graph root of a local file system graph and evicts the
// in-memory graph when a note file or graph.json changes behind the engine's
// back. Writes made by FlushChanges match memory and are ignored. guard is
// read-locked while comparing, so comparisons never see a half-applied
// mutation. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, e *Engine, root string, guard sync.Locker, logger *slog.Logger, cb EvictCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]struct{})
	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-debounceCh:
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			clear(pending)
			debounceCh = nil

			guard.Lock()
			changed := e.changedObjects(ctx, names)
			if len(changed) > 0 {
				e.Evict()
			}
			guard.Unlock()

			if len(changed) > 0 {
				logger.Info("watcher: external change, graph evicted", slog.Any("objects", changed))
				if cb != nil {
					cb(changed)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if _, isNote := notefile.SlugFromFilename(name); !isNote && name != MetadataFile {
				continue
			}
			pending[name] = struct{}{}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				debounce.Reset(watchDebounce)
			}
			debounceCh = debounce.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// changedObjects returns the names whose stored content differs from the
// in-memory graph. With no graph in memory nothing can be stale.
func (e *Engine) changedObjects(ctx context.Context, names []string) []string {
	g := e.cached()
	if g == nil {
		return nil
	}
	var changed []string
	for _, name := range names {
		stored, err := e.provider.ReadObjectAsString(ctx, name)
		exists := err == nil
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("watcher: read failed", slog.String("object", name), slog.String("error", err.Error()))
			continue
		}

		var inMemory string
		var known bool
		if name == MetadataFile {
			data, err := json.Marshal(g.Metadata)
			if err != nil {
				continue
			}
			inMemory, known = string(data), true
		} else {
			s, _ := notefile.SlugFromFilename(name)
			if note, ok := g.Notes[s]; ok {
				inMemory, known = notefile.Serialize(note), true
			}
		}

		if exists != known || (exists && stored != inMemory) {
			changed = append(changed, name)
		}
	}
	return changed
}
