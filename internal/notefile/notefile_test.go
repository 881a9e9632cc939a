package notefile

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/starford/neno/internal/apperr"
	"github.com/starford/neno/internal/models"
)

func sampleNote() *models.ExistingNote {
	return &models.ExistingNote{
		Meta: models.NoteMeta{
			Slug:        "sample",
			CreatedAt:   time.UnixMilli(1700000000123),
			UpdatedAt:   time.UnixMilli(1700000999456),
			Custom:      map[string]string{"source": "https://example.com/a:b", "author": "ann"},
			Flags:       []string{"IMPORTED", "DUPLICATE_OF(232)"},
			ContentType: models.DefaultContentType,
		},
		Content: "# Sample\n\nBody with [[Link]]\n",
	}
}

func TestSerialize_Format(t *testing.T) {
	got := Serialize(sampleNote())
	want := ":created-at:1700000000123\n" +
		":updated-at:1700000999456\n" +
		":neno-flags:IMPORTED,DUPLICATE_OF(232)\n" +
		":content-type:text/subtext\n" +
		":author:ann\n" +
		":source:https://example.com/a:b\n" +
		"\n" +
		"# Sample\n\nBody with [[Link]]\n"
	if got != want {
		t.Errorf("serialized mismatch:\n%s", cmp.Diff(want, got))
	}
}

func TestRoundTrip(t *testing.T) {
	notes := []*models.ExistingNote{
		sampleNote(),
		{Meta: models.NoteMeta{Slug: "bare", ContentType: models.DefaultContentType}, Content: "x"},
		{Meta: models.NoteMeta{Slug: "leading-blank", ContentType: "text/plain", CreatedAt: time.UnixMilli(1)}, Content: "\n\nindented"},
	}
	for _, note := range notes {
		parsed, err := Parse(Serialize(note), note.Meta.Slug)
		if err != nil {
			t.Fatalf("Parse(%s): %v", note.Meta.Slug, err)
		}
		if diff := cmp.Diff(note, parsed, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("round trip mismatch for %s (-want +got):\n%s", note.Meta.Slug, diff)
		}
	}
}

func TestSerialize_PrunesEmptyCustomValues(t *testing.T) {
	note := sampleNote()
	note.Meta.Custom["empty"] = ""
	parsed, err := Parse(Serialize(note), "sample")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := parsed.Meta.Custom["empty"]; ok {
		t.Error("empty custom value should be pruned")
	}
}

func TestParse_NoHeaders(t *testing.T) {
	note, err := Parse("just content\r\nline two", "plain")
	if err != nil {
		t.Fatal(err)
	}
	if note.Content != "just content\nline two" {
		t.Errorf("content = %q", note.Content)
	}
	if !note.Meta.CreatedAt.IsZero() || !note.Meta.UpdatedAt.IsZero() {
		t.Error("timestamps should be undefined")
	}
	if note.Meta.ContentType != models.DefaultContentType {
		t.Errorf("content type = %q", note.Meta.ContentType)
	}
	if len(note.Meta.Flags) != 0 {
		t.Errorf("flags = %v", note.Meta.Flags)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{
		":created-at:yesterday\n\ncontent",
		":created-at:1\ncontent without separator",
	}
	for _, raw := range cases {
		if _, err := Parse(raw, "bad"); !errors.Is(err, apperr.ErrInvalidNoteStructure) {
			t.Errorf("Parse(%q) err = %v, want ErrInvalidNoteStructure", raw, err)
		}
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("a/b"); got != "a$b.subtext" {
		t.Errorf("Filename = %q", got)
	}
	s, ok := SlugFromFilename("a$b.subtext")
	if !ok || s != "a/b" {
		t.Errorf("SlugFromFilename = %q, %v", s, ok)
	}
	if _, ok := SlugFromFilename("graph.json"); ok {
		t.Error("graph.json is not a note file")
	}
}
