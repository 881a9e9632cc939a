package graph

import (
	"strings"

	"github.com/starford/neno/internal/slug"
	"github.com/starford/neno/internal/subwaytext"
)

// NoteLinks returns the note slugs referenced by blocks through slashlinks
// and wikilinks. Attachment targets are excluded.
func NoteLinks(blocks []subwaytext.Block) Set {
	out := make(Set)
	walkLinks(blocks, func(target string) {
		if target != "" && !slug.IsFileSlug(target) {
			out[target] = struct{}{}
		}
	})
	return out
}

// FileReferences returns the attachment IDs referenced by blocks.
func FileReferences(blocks []subwaytext.Block) Set {
	out := make(Set)
	walkLinks(blocks, func(target string) {
		if slug.IsFileSlug(target) {
			if id := slug.FileIDFromSlug(target); id != "" {
				out[id] = struct{}{}
			}
		}
	})
	return out
}

// URLs returns every URL in blocks: standalone URL blocks and inline
// hyperlinks.
func URLs(blocks []subwaytext.Block) Set {
	out := make(Set)
	for _, b := range blocks {
		if d, ok := b.Data.(subwaytext.URLData); ok {
			out[d.URL] = struct{}{}
		}
		for _, sp := range b.Spans() {
			if sp.Type == subwaytext.SpanHyperlink {
				out[sp.Text] = struct{}{}
			}
		}
	}
	return out
}

func walkLinks(blocks []subwaytext.Block, fn func(target string)) {
	for _, b := range blocks {
		if d, ok := b.Data.(subwaytext.SlashlinkData); ok {
			fn(strings.TrimPrefix(d.Link, "/"))
		}
		for _, sp := range b.Spans() {
			switch sp.Type {
			case subwaytext.SpanSlashlink:
				fn(strings.TrimPrefix(sp.Text, "/"))
			case subwaytext.SpanWikilink:
				fn(slug.SluggifyLinkText(sp.Text))
			}
		}
	}
}
