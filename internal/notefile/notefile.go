// Package notefile serializes notes to and from the on-disk note format:
// a block of ":key:value" header lines, one blank line, then the raw content.
package notefile

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/starford/neno/internal/apperr"
	"github.com/starford/neno/internal/models"
)

// Extension is the file extension of serialized notes.
const Extension = ".subtext"

// Canonical header keys.
const (
	HeaderCreatedAt   = "created-at"
	HeaderUpdatedAt   = "updated-at"
	HeaderFlags       = "neno-flags"
	HeaderContentType = "content-type"
)

var headerRe = regexp.MustCompile(`^:([^:\s]+):(.*)$`)

// Serialize renders note in the note file format. Custom metadata is written
// in key order; empty values and keys that cannot be represented are dropped.
func Serialize(note *models.ExistingNote) string {
	var b strings.Builder
	meta := note.Meta
	if !meta.CreatedAt.IsZero() {
		fmt.Fprintf(&b, ":%s:%d\n", HeaderCreatedAt, meta.CreatedAt.UnixMilli())
	}
	if !meta.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, ":%s:%d\n", HeaderUpdatedAt, meta.UpdatedAt.UnixMilli())
	}
	if len(meta.Flags) > 0 {
		fmt.Fprintf(&b, ":%s:%s\n", HeaderFlags, strings.Join(meta.Flags, ","))
	}
	fmt.Fprintf(&b, ":%s:%s\n", HeaderContentType, meta.ContentType)

	keys := make([]string, 0, len(meta.Custom))
	for k, v := range meta.Custom {
		if v == "" || !validCustomKey(k) || strings.ContainsAny(v, "\r\n") {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ":%s:%s\n", k, meta.Custom[k])
	}

	b.WriteString("\n")
	b.WriteString(note.Content)
	return b.String()
}

// Parse reads a serialized note. A note without any header lines is valid and
// gets undefined timestamps and the default content type. Header lines must be
// followed by a blank line; malformed headers yield apperr.ErrInvalidNoteStructure.
func Parse(raw, slug string) (*models.ExistingNote, error) {
	raw = strings.ReplaceAll(raw, "\r", "")
	lines := strings.Split(raw, "\n")

	meta := models.NoteMeta{
		Slug:        slug,
		Custom:      map[string]string{},
		Flags:       []string{},
		ContentType: models.DefaultContentType,
	}

	i := 0
	for ; i < len(lines); i++ {
		m := headerRe.FindStringSubmatch(lines[i])
		if m == nil {
			break
		}
		if err := applyHeader(&meta, m[1], m[2]); err != nil {
			return nil, fmt.Errorf("notefile: %s: %w", slug, err)
		}
	}

	if i == 0 {
		return &models.ExistingNote{Meta: meta, Content: raw}, nil
	}
	if i < len(lines) {
		if lines[i] != "" {
			return nil, fmt.Errorf("notefile: %s: missing blank line after headers: %w", slug, apperr.ErrInvalidNoteStructure)
		}
		i++
	}
	content := ""
	if i < len(lines) {
		content = strings.Join(lines[i:], "\n")
	}
	return &models.ExistingNote{Meta: meta, Content: content}, nil
}

func applyHeader(meta *models.NoteMeta, key, value string) error {
	switch key {
	case HeaderCreatedAt, HeaderUpdatedAt:
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, apperr.ErrInvalidNoteStructure)
		}
		if key == HeaderCreatedAt {
			meta.CreatedAt = time.UnixMilli(ms)
		} else {
			meta.UpdatedAt = time.UnixMilli(ms)
		}
	case HeaderFlags:
		for _, f := range strings.Split(value, ",") {
			if f != "" {
				meta.Flags = append(meta.Flags, f)
			}
		}
	case HeaderContentType:
		meta.ContentType = value
	default:
		if value != "" {
			meta.Custom[key] = value
		}
	}
	return nil
}

func validCustomKey(k string) bool {
	if k == "" || strings.ContainsAny(k, ": \t\r\n") {
		return false
	}
	switch k {
	case HeaderCreatedAt, HeaderUpdatedAt, HeaderFlags, HeaderContentType:
		return false
	}
	return true
}

// Filename returns the storage object name of the note with the given slug.
// Slashes are not valid in file names and are stored as "$".
func Filename(slug string) string {
	return strings.ReplaceAll(slug, "/", "$") + Extension
}

// SlugFromFilename reverses Filename. ok is false for non-note objects.
func SlugFromFilename(name string) (string, bool) {
	if !strings.HasSuffix(name, Extension) {
		return "", false
	}
	return strings.ReplaceAll(strings.TrimSuffix(name, Extension), "$", "/"), true
}
