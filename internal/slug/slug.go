// Package slug derives stable, URL-safe note identifiers from note content.
package slug

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxSlugLength  = 200
	maxTitleLength = 800

	// FilePrefix marks slashlink targets that address attachments, not notes.
	FilePrefix = "files/"

	fallbackStem    = "new"
	collisionSuffix = "-2"
)

var (
	apostropheRe    = regexp.MustCompile(`['’]+`)
	invalidRe       = regexp.MustCompile(`[^\p{L}\p{M}\p{Nd}_-]+`)
	dashesRe        = regexp.MustCompile(`-+`)
	orderedMarkerRe = regexp.MustCompile(`^\d+\.`)
)

// Sluggify folds text into a slug: lowercase letters, marks, digits,
// underscores and single dashes, without leading or trailing dashes.
func Sluggify(text string) string {
	s := strings.TrimSpace(text)
	s = apostropheRe.ReplaceAllString(s, "")
	s = strings.ToLower(s)
	s = invalidRe.ReplaceAllString(s, "-")
	s = dashesRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return strings.Trim(truncate(s, maxSlugLength), "-")
}

// SluggifyLinkText is the wikilink variant of Sluggify: a double slash in
// the source text is kept as one slash in the slug.
func SluggifyLinkText(text string) string {
	var parts []string
	for _, part := range strings.Split(text, "//") {
		if s := Sluggify(part); s != "" {
			parts = append(parts, s)
		}
	}
	return truncate(strings.Join(parts, "/"), maxSlugLength)
}

// Normalize folds a user-supplied slug segment by segment, keeping single
// slashes as separators: "Tools//Go" and "tools/go" both become "tools/go".
func Normalize(s string) string {
	var parts []string
	for _, part := range strings.Split(s, "/") {
		if p := Sluggify(part); p != "" {
			parts = append(parts, p)
		}
	}
	return truncate(strings.Join(parts, "/"), maxSlugLength)
}

// InferTitle returns the first meaningful line of content with block
// sigils and link punctuation removed.
func InferTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "```") {
			continue
		}
		t = strings.TrimLeft(t, "#>")
		t = strings.TrimSpace(t)
		if strings.HasPrefix(t, "-") {
			t = t[1:]
		} else if m := orderedMarkerRe.FindString(t); m != "" {
			t = t[len(m):]
		}
		t = strings.ReplaceAll(t, "[[", "")
		t = strings.ReplaceAll(t, "]]", "")
		t = strings.TrimSpace(t)
		if t != "" {
			return truncate(t, maxTitleLength)
		}
	}
	return ""
}

// Create derives a slug from content that is not contained in existing.
func Create(content string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		taken[s] = struct{}{}
	}
	return Unique(Sluggify(InferTitle(content)), func(s string) bool {
		_, ok := taken[s]
		return ok
	})
}

// Unique returns stem, or stem with "-2" appended to the whole previous
// candidate for every collision: content, content-2, content-2-2.
// Stored slugs depend on this exact stacking.
func Unique(stem string, taken func(string) bool) string {
	if stem == "" {
		stem = fallbackStem
	}
	candidate := stem
	for taken(candidate) {
		candidate += collisionSuffix
	}
	return candidate
}

// IsFileSlug reports whether s addresses an attachment.
func IsFileSlug(s string) bool {
	return strings.HasPrefix(s, FilePrefix)
}

// FileIDFromSlug returns the attachment ID addressed by a file slug.
func FileIDFromSlug(s string) string {
	return strings.TrimPrefix(s, FilePrefix)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
