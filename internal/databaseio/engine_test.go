package databaseio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/starford/neno/internal/apperr"
	"github.com/starford/neno/internal/models"
	"github.com/starford/neno/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEngine(t *testing.T, p storage.Provider, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithWorkers(2)}, opts...)
	e := New(p, opts...)
	t.Cleanup(e.Close)
	return e
}

func testNote(slug, content string) *models.ExistingNote {
	at := time.UnixMilli(1700000000000)
	return &models.ExistingNote{
		Meta: models.NoteMeta{
			Slug:        slug,
			CreatedAt:   at,
			UpdatedAt:   at,
			Custom:      map[string]string{},
			Flags:       []string{},
			ContentType: models.DefaultContentType,
		},
		Content: content,
	}
}

func TestGetGraph_CreatesFreshGraph(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	e := testEngine(t, mem)

	g, err := e.GetGraph(ctx)
	require.NoError(t, err)
	require.Empty(t, g.Notes)
	require.Equal(t, 1.0, g.Metadata.ScreenPosition.Scale)

	raw, err := mem.ReadObjectAsString(ctx, MetadataFile)
	require.NoError(t, err)
	require.Contains(t, raw, `"pinnedNotes":[]`)
}

func TestGetGraph_Cached(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, storage.NewMemory())

	var wg sync.WaitGroup
	graphs := make([]any, 8)
	for i := range graphs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := e.GetGraph(ctx)
			if err == nil {
				graphs[i] = g
			}
		}()
	}
	wg.Wait()
	for _, g := range graphs {
		require.Same(t, graphs[0], g)
	}
}

// countingStore counts metadata reads. A non-nil gate blocks every read
// until it is closed; failNext makes the next read fail.
type countingStore struct {
	*storage.Memory
	reads    atomic.Int32
	gate     chan struct{}
	failNext atomic.Bool
}

var errUnavailable = errors.New("storage unavailable")

func (c *countingStore) ReadObjectAsString(ctx context.Context, p string) (string, error) {
	if p == MetadataFile {
		c.reads.Add(1)
		if c.gate != nil {
			<-c.gate
		}
		if c.failNext.CompareAndSwap(true, false) {
			return "", errUnavailable
		}
	}
	return c.Memory.ReadObjectAsString(ctx, p)
}

func waitForReads(t *testing.T, c *countingStore, n int32) {
	t.Helper()
	require.Eventually(t, func() bool { return c.reads.Load() >= n }, time.Second, time.Millisecond)
}

func TestGetGraph_ConcurrentCallersShareOneLoad(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Memory: storage.NewMemory(), gate: make(chan struct{})}
	e := testEngine(t, store)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.GetGraph(ctx)
		}()
	}
	waitForReads(t, store, 1)
	time.Sleep(20 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, store.reads.Load())
}

func TestGetGraph_RetriesAfterFailedLoad(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Memory: storage.NewMemory()}
	store.failNext.Store(true)
	e := testEngine(t, store)

	_, err := e.GetGraph(ctx)
	require.ErrorIs(t, err, errUnavailable)

	g, err := e.GetGraph(ctx)
	require.NoError(t, err)
	require.NotNil(t, g)
	require.EqualValues(t, 2, store.reads.Load())
}

func TestGetGraph_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	store := &countingStore{Memory: storage.NewMemory(), gate: make(chan struct{})}
	e := testEngine(t, store)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := e.GetGraph(first)
		firstErr <- err
	}()
	waitForReads(t, store, 1)

	secondErr := make(chan error, 1)
	go func() {
		_, err := e.GetGraph(context.Background())
		secondErr <- err
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(store.gate)
	require.NoError(t, <-secondErr)
	require.EqualValues(t, 1, store.reads.Load())
}

func TestFlushAndReload(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	e := testEngine(t, mem)

	g, err := e.GetGraph(ctx)
	require.NoError(t, err)
	g.SetNote(testNote("a", "# A\n\nsee /b and [[Ghost]]"))
	g.SetNote(testNote("b", "- item /a"))
	g.SetNote(testNote("tools/thought", "namespaced"))
	g.Metadata.PinnedNotes = []string{"a"}
	require.NoError(t, e.FlushChanges(ctx, g))

	_, err = mem.ReadObjectAsString(ctx, "tools$thought.subtext")
	require.NoError(t, err, "slash in slug is stored as $")

	e.Evict()
	reloaded, err := e.GetGraph(ctx)
	require.NoError(t, err)
	require.NotSame(t, g, reloaded)

	if diff := cmp.Diff(g.Notes, reloaded.Notes); diff != "" {
		t.Errorf("notes mismatch (-flushed +reloaded):\n%s", diff)
	}
	if diff := cmp.Diff(g.Indexes, reloaded.Indexes); diff != "" {
		t.Errorf("indexes mismatch (-flushed +reloaded):\n%s", diff)
	}
	require.Equal(t, g.Metadata.PinnedNotes, reloaded.Metadata.PinnedNotes)
	require.True(t, g.Metadata.UpdatedAt.Equal(reloaded.Metadata.UpdatedAt))
}

func TestFlushChanges_RemovesDeletedNotes(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	e := testEngine(t, mem)

	g, err := e.GetGraph(ctx)
	require.NoError(t, err)
	g.SetNote(testNote("a", "x"))
	require.NoError(t, e.FlushChanges(ctx, g, "a"))

	g.RemoveNote("a")
	require.NoError(t, e.FlushChanges(ctx, g, "a"))
	_, err = mem.ReadObjectAsString(ctx, "a.subtext")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Flushing a slug that never existed is fine.
	require.NoError(t, e.FlushChanges(ctx, g, "never"))
}

func TestFlushChanges_UpdatedAtStrictlyIncreases(t *testing.T) {
	ctx := context.Background()
	frozen := time.UnixMilli(1700000000000)
	e := testEngine(t, storage.NewMemory(), WithClock(func() time.Time { return frozen }))

	g, err := e.GetGraph(ctx)
	require.NoError(t, err)
	prev := g.Metadata.UpdatedAt
	for range 3 {
		require.NoError(t, e.FlushChanges(ctx, g))
		require.True(t, g.Metadata.UpdatedAt.After(prev), "updatedAt did not increase")
		prev = g.Metadata.UpdatedAt
	}
}

func TestLoad_DropsUnparseableNotes(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.WriteObject(ctx, MetadataFile, `{"createdAt":1,"updatedAt":2,"pinnedNotes":[],"files":[]}`))
	require.NoError(t, mem.WriteObject(ctx, "good.subtext", ":created-at:1\n\nfine"))
	require.NoError(t, mem.WriteObject(ctx, "bad.subtext", ":created-at:yesterday\n\nbroken"))
	require.NoError(t, mem.WriteObject(ctx, "plain.subtext", "no headers at all"))
	require.NoError(t, mem.WriteObject(ctx, "notes.txt", "ignored"))

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	e := testEngine(t, mem, WithLogger(logger))

	g, err := e.GetGraph(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"good", "plain"}, g.Slugs())
	require.Contains(t, logs.String(), `"slug":"bad"`)
}

func TestGetRawNote(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, storage.NewMemory())
	g, err := e.GetGraph(ctx)
	require.NoError(t, err)
	g.SetNote(testNote("a", "body"))
	require.NoError(t, e.FlushChanges(ctx, g, "a"))

	raw, err := e.GetRawNote(ctx, "a")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(raw, "\n\nbody"), raw)

	_, err = e.GetRawNote(ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNoteNotFound)
}

func TestFiles_TolerateMissingFolder(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, storage.NewMemory())

	files, err := e.GetFiles(ctx)
	require.NoError(t, err)
	require.Empty(t, files)

	size, err := e.GetSizeOfGraphFiles(ctx)
	require.NoError(t, err)
	require.Zero(t, size)

	_, err = e.GetFileSize(ctx, "nope.png")
	require.ErrorIs(t, err, apperr.ErrFileNotFound)
	require.ErrorIs(t, e.DeleteFile(ctx, "nope.png"), apperr.ErrFileNotFound)
}

func TestFiles_Lifecycle(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, storage.NewMemory())

	n, err := e.AddFile(ctx, "abc.txt", strings.NewReader("hello world"))
	require.NoError(t, err)
	require.EqualValues(t, 11, n)

	files, err := e.GetFiles(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"abc.txt"}, files)

	rc, err := e.GetReadableFileStream(ctx, "abc.txt", &storage.Range{Start: 6, End: 10})
	require.NoError(t, err)
	part, _ := io.ReadAll(rc)
	rc.Close()
	require.Equal(t, "world", string(part))

	size, err := e.GetSizeOfGraphFiles(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 11, size)

	require.NoError(t, e.DeleteFile(ctx, "abc.txt"))
	_, err = e.GetReadableFileStream(ctx, "abc.txt", nil)
	require.ErrorIs(t, err, apperr.ErrFileNotFound)
}

func TestGetReadableGraphStream(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, storage.NewMemory())

	_, err := e.GetReadableGraphStream(ctx, false)
	require.ErrorIs(t, err, apperr.ErrGraphNotFound)

	_, err = e.GetGraph(ctx)
	require.NoError(t, err)
	rc, err := e.GetReadableGraphStream(ctx, false)
	require.NoError(t, err)
	raw, _ := io.ReadAll(rc)
	rc.Close()
	require.Contains(t, string(raw), `"screenPosition"`)

	_, err = e.GetReadableGraphStream(ctx, true)
	require.ErrorIs(t, err, apperr.ErrNotSupportedByStorageProvider)
}

func TestGetReadableGraphStream_Archive(t *testing.T) {
	ctx := context.Background()
	fs, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	e := testEngine(t, fs)
	_, err = e.GetGraph(ctx)
	require.NoError(t, err)

	rc, err := e.GetReadableGraphStream(ctx, true)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("PK")), "not a zip stream")
}
