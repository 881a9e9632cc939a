package noteservice

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/neno/internal/apperr"
	"github.com/starford/neno/internal/databaseio"
	"github.com/starford/neno/internal/search"
	"github.com/starford/neno/internal/storage"
	"github.com/starford/neno/internal/testutil"
)

type changeLog struct {
	mu     sync.Mutex
	events []string
}

func (c *changeLog) record(kind, slug string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, kind+":"+slug)
}

func tickingClock() func() time.Time {
	var (
		mu sync.Mutex
		ms int64 = 1700000000000
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ms += 1000
		return time.UnixMilli(ms)
	}
}

func newService(t *testing.T) (*Service, *storage.Memory, *changeLog) {
	t.Helper()
	e, mem := testutil.MemoryEngine(t)
	log := &changeLog{}
	svc := New(e,
		WithLogger(testutil.Logger()),
		WithClock(tickingClock()),
		WithChangeListener(log.record))
	return svc, mem, log
}

func TestPut_CreateDerivesStackedSlugs(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	var got []string
	for range 3 {
		d, err := svc.Put(ctx, PutRequest{Content: "# Hello World"})
		require.NoError(t, err)
		got = append(got, d.Meta.Slug)
	}
	require.Equal(t, []string{"hello-world", "hello-world-2", "hello-world-2-2"}, got)
}

func TestPut_CreateWithRequestedSlug(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	d, err := svc.Put(ctx, PutRequest{Slug: "Tools//Go", Content: "go things"})
	require.NoError(t, err)
	require.Equal(t, "tools/go", d.Meta.Slug)

	_, err = svc.Put(ctx, PutRequest{Slug: "Files//x", Content: "x"})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = svc.Put(ctx, PutRequest{Slug: "!!!", Content: "x"})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = svc.Put(ctx, PutRequest{Slug: "tools/go", Content: "x"})
	require.NoError(t, err)
}

func TestPut_UpdateKeepsCreationDate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	created, err := svc.Put(ctx, PutRequest{Content: "# Note", Custom: map[string]string{"a": "1", "b": ""}, Flags: []string{"X", "X"}})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1"}, created.Meta.Custom)
	require.Equal(t, []string{"X"}, created.Meta.Flags)

	updated, err := svc.Put(ctx, PutRequest{Slug: created.Meta.Slug, Content: "# Note\n\nmore", IfMatch: created.ETag})
	require.NoError(t, err)
	require.Equal(t, created.Meta.CreatedAt, updated.Meta.CreatedAt)
	require.True(t, updated.Meta.UpdatedAt.After(created.Meta.UpdatedAt))
	require.NotEqual(t, created.ETag, updated.ETag)

	_, err = svc.Put(ctx, PutRequest{Slug: created.Meta.Slug, Content: "stale", IfMatch: created.ETag})
	require.ErrorIs(t, err, apperr.ErrConflict)

	raw, err := svc.GetRaw(ctx, created.Meta.Slug)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(raw, "\n\n# Note\n\nmore"))
}

func TestPut_Rename(t *testing.T) {
	ctx := context.Background()
	svc, _, log := newService(t)

	_, err := svc.Put(ctx, PutRequest{Slug: "old", Content: "old"})
	require.NoError(t, err)
	_, err = svc.Put(ctx, PutRequest{Slug: "taken", Content: "taken"})
	require.NoError(t, err)
	_, err = svc.Pin(ctx, "old")
	require.NoError(t, err)

	_, err = svc.Put(ctx, PutRequest{Slug: "old", Content: "old", ChangeSlugTo: "taken"})
	require.ErrorIs(t, err, apperr.ErrAlreadyExists)

	d, err := svc.Put(ctx, PutRequest{Slug: "old", Content: "renamed", ChangeSlugTo: "New Name"})
	require.NoError(t, err)
	require.Equal(t, "new-name", d.Meta.Slug)

	_, err = svc.GetRaw(ctx, "old")
	require.ErrorIs(t, err, apperr.ErrNoteNotFound)
	_, err = svc.Get(ctx, "old")
	require.ErrorIs(t, err, apperr.ErrNoteNotFound)

	pins, err := svc.Pins(ctx)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	require.Equal(t, "new-name", pins[0].Slug)

	require.Contains(t, log.events, "removed:old")
	require.Equal(t, "saved:new-name", log.events[len(log.events)-1])
}

func TestGet_LinksAndBacklinks(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.Put(ctx, PutRequest{Slug: "a", Content: "see /b and [[C]]"})
	require.NoError(t, err)
	_, err = svc.Put(ctx, PutRequest{Slug: "b", Content: "# B"})
	require.NoError(t, err)

	a, err := svc.Get(ctx, "a")
	require.NoError(t, err)
	require.Len(t, a.OutgoingLinks, 1)
	require.Equal(t, "b", a.OutgoingLinks[0].Slug)
	require.Empty(t, a.Backlinks)

	b, err := svc.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "B", b.Title)
	require.Len(t, b.Backlinks, 1)
	require.Equal(t, "a", b.Backlinks[0].Slug)

	_, err = svc.Put(ctx, PutRequest{Slug: "c", Content: "c"})
	require.NoError(t, err)
	c, err := svc.Get(ctx, "c")
	require.NoError(t, err)
	require.Len(t, c.Backlinks, 1)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	svc, _, log := newService(t)

	_, err := svc.Put(ctx, PutRequest{Slug: "gone", Content: "bye"})
	require.NoError(t, err)
	_, err = svc.Pin(ctx, "gone")
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, "gone"))
	require.ErrorIs(t, svc.Remove(ctx, "gone"), apperr.ErrNoteNotFound)

	pins, err := svc.Pins(ctx)
	require.NoError(t, err)
	require.Empty(t, pins)
	require.Equal(t, []string{"saved:gone", "removed:gone"}, log.events)
}

func TestPins(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	for _, s := range []string{"one", "two"} {
		_, err := svc.Put(ctx, PutRequest{Slug: s, Content: s})
		require.NoError(t, err)
	}
	_, err := svc.Pin(ctx, "two")
	require.NoError(t, err)
	pins, err := svc.Pin(ctx, "one")
	require.NoError(t, err)
	pins2, err := svc.Pin(ctx, "one")
	require.NoError(t, err)
	require.Equal(t, pins, pins2)
	require.Equal(t, "two", pins[0].Slug)
	require.Equal(t, "one", pins[1].Slug)

	pins, err = svc.Unpin(ctx, "two")
	require.NoError(t, err)
	require.Len(t, pins, 1)

	_, err = svc.Pin(ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNoteNotFound)
}

func TestFiles(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	f, err := svc.AddFile(ctx, "Photo.PNG", strings.NewReader("pixels"))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(f.FileID, ".png"))
	require.Equal(t, "Photo.PNG", f.Name)
	require.EqualValues(t, 6, f.Size)

	_, err = svc.Put(ctx, PutRequest{Slug: "album", Content: "look /files/" + f.FileID})
	require.NoError(t, err)
	d, err := svc.Get(ctx, "album")
	require.NoError(t, err)
	require.Len(t, d.Files, 1)
	require.Equal(t, f.FileID, d.Files[0].FileID)

	rc, err := svc.OpenFile(ctx, f.FileID, &storage.Range{Start: 1, End: 3})
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "ixe", string(data))

	files, err := svc.GetFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)

	require.NoError(t, svc.DeleteFile(ctx, f.FileID))
	_, err = svc.GetFile(ctx, f.FileID)
	require.ErrorIs(t, err, apperr.ErrFileNotFound)
	require.ErrorIs(t, svc.DeleteFile(ctx, f.FileID), apperr.ErrFileNotFound)

	_, err = svc.AddFile(ctx, " ", strings.NewReader("x"))
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.Put(ctx, PutRequest{Slug: "a", Content: "/b"})
	require.NoError(t, err)
	_, err = svc.Put(ctx, PutRequest{Slug: "b", Content: "b"})
	require.NoError(t, err)
	_, err = svc.Put(ctx, PutRequest{Slug: "lonely", Content: "alone"})
	require.NoError(t, err)
	_, err = svc.AddFile(ctx, "a.txt", strings.NewReader("12345"))
	require.NoError(t, err)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, st.NumberOfAllNotes)
	require.Equal(t, 1, st.NumberOfLinks)
	require.Equal(t, 1, st.NumberOfFiles)
	require.Equal(t, 2, st.NumberOfComponents)
	require.Equal(t, 1, st.NumberOfUnlinkedNotes)
	require.EqualValues(t, 5, st.Size.Files)
	require.Greater(t, st.Size.Graph, st.Size.Files)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.Put(ctx, PutRequest{Slug: "alpha", Content: "# Alpha"})
	require.NoError(t, err)
	_, err = svc.Put(ctx, PutRequest{Slug: "beta", Content: "# Beta"})
	require.NoError(t, err)

	page, err := svc.Search(ctx, search.Request{Query: "alp"})
	require.NoError(t, err)
	require.Equal(t, 1, page.NumberOfResults)
	require.Equal(t, "alpha", page.Results[0].Slug)
}

func snapshot(t *testing.T, mem *storage.Memory) map[string]string {
	t.Helper()
	ctx := context.Background()
	names, err := mem.ListDirectory(ctx, "")
	require.NoError(t, err)
	out := make(map[string]string, len(names))
	for _, n := range names {
		raw, err := mem.ReadObjectAsString(ctx, n)
		require.NoError(t, err)
		out[n] = raw
	}
	return out
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.WriteObject(ctx, "messy.subtext",
		":created-at:1700000000000\n:neno-flags:A,A,B\n:content-type:text/subtext\n\nmessy"))
	require.NoError(t, mem.WriteObject(ctx, "bare.subtext", "no headers at all"))
	require.NoError(t, mem.WriteObject(ctx, databaseio.MetadataFile,
		`{"createdAt":1,"updatedAt":2,"screenPosition":{"translateX":0,"translateY":0,"scale":1},`+
			`"initialNodePosition":{"x":0,"y":0},"pinnedNotes":["messy","ghost","messy"],`+
			`"files":[{"fileId":"f.png","name":"f.png","size":1,"createdAt":3},{"fileId":"f.png","name":"f.png","size":1,"createdAt":3}]}`))

	run := func() bool {
		e := databaseio.New(mem, databaseio.WithLogger(testutil.Logger()), databaseio.WithWorkers(2))
		defer e.Close()
		changed, err := New(e, WithLogger(testutil.Logger()), WithClock(tickingClock())).Migrate(ctx)
		require.NoError(t, err)
		return changed
	}

	require.True(t, run())
	after := snapshot(t, mem)
	require.Contains(t, after["messy.subtext"], ":updated-at:1700000000000\n")
	require.Contains(t, after["messy.subtext"], ":neno-flags:A,B\n")
	require.Contains(t, after["bare.subtext"], ":created-at:")
	require.Contains(t, after[databaseio.MetadataFile], `"pinnedNotes":["messy"]`)
	require.Equal(t, 1, strings.Count(after[databaseio.MetadataFile], `"fileId"`))

	require.False(t, run())
	require.Equal(t, after, snapshot(t, mem))
}
