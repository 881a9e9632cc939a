package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tidwall/btree"
)

// Memory is an in-process Provider keeping objects in an ordered map.
// Folders exist implicitly while they contain at least one object.
type Memory struct {
	mu      sync.RWMutex
	objects *btree.Map[string, []byte]
}

// NewMemory returns an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{objects: btree.NewMap[string, []byte](0)}
}

// ReadObjectAsString returns the content of an object.
func (m *Memory) ReadObjectAsString(_ context.Context, p string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects.Get(cleanKey(p))
	if !ok {
		return "", fmt.Errorf("storage: read %s: %w", p, ErrNotFound)
	}
	return string(data), nil
}

// GetReadableStream returns a reader over a copy of the object.
func (m *Memory) GetReadableStream(_ context.Context, p string, rng *Range) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.objects.Get(cleanKey(p))
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: open %s: %w", p, ErrNotFound)
	}
	if rng != nil {
		start := min(rng.Start, int64(len(data)))
		end := min(rng.End+1, int64(len(data)))
		data = data[start:max(start, end)]
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// WriteObject replaces an object.
func (m *Memory) WriteObject(_ context.Context, p string, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects.Set(cleanKey(p), []byte(data))
	return nil
}

// WriteObjectFromReadable reads r fully and stores it as an object.
func (m *Memory) WriteObjectFromReadable(_ context.Context, p string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("storage: write %s: %w", p, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects.Set(cleanKey(p), data)
	return int64(len(data)), nil
}

// RemoveObject deletes an object.
func (m *Memory) RemoveObject(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects.Delete(cleanKey(p)); !ok {
		return fmt.Errorf("storage: delete %s: %w", p, ErrNotFound)
	}
	return nil
}

// ListDirectory returns the direct children of a folder, sorted by name.
func (m *Memory) ListDirectory(_ context.Context, p string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	seen := make(map[string]struct{})
	found := m.scanFolder(cleanKey(p), func(rel string, _ []byte) {
		name, _, _ := strings.Cut(rel, "/")
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	})
	if !found && cleanKey(p) != "" {
		return nil, fmt.Errorf("storage: list %s: %w", p, ErrNotFound)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// GetFileSize returns the size of an object.
func (m *Memory) GetFileSize(_ context.Context, p string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects.Get(cleanKey(p))
	if !ok {
		return 0, fmt.Errorf("storage: stat %s: %w", p, ErrNotFound)
	}
	return int64(len(data)), nil
}

// GetFolderSize sums the sizes of all objects below a folder.
func (m *Memory) GetFolderSize(_ context.Context, p string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	found := m.scanFolder(cleanKey(p), func(_ string, data []byte) {
		total += int64(len(data))
	})
	if !found && cleanKey(p) != "" {
		return 0, fmt.Errorf("storage: folder size %s: %w", p, ErrNotFound)
	}
	return total, nil
}

// JoinPath joins path segments.
func (m *Memory) JoinPath(segments ...string) string {
	return JoinPath(segments...)
}

// scanFolder calls fn for every object below folder with its folder-relative
// key. Caller must hold m.mu.
func (m *Memory) scanFolder(folder string, fn func(rel string, data []byte)) bool {
	prefix := ""
	if folder != "" {
		prefix = folder + "/"
	}
	found := false
	m.objects.Ascend(prefix, func(key string, data []byte) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		found = true
		fn(strings.TrimPrefix(key, prefix), data)
		return true
	})
	return found
}
