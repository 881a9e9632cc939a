// Package graph holds the in-memory note graph and its derived indexes.
//
// Notes reference each other only by slug. Outgoing links and backlinks are
// slug-keyed adjacency sets, and backlinks is always the transpose of the
// outgoing links.
package graph

import (
	"sort"

	"github.com/starford/neno/internal/models"
	"github.com/starford/neno/internal/slug"
	"github.com/starford/neno/internal/subwaytext"
)

// Set is a set of slugs.
type Set map[string]struct{}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Indexes are derived from note content and rebuilt on every change.
type Indexes struct {
	Blocks        map[string][]subwaytext.Block
	OutgoingLinks map[string]Set
	// Backlinks has an entry for every note and every dangling link target.
	Backlinks map[string]Set
}

// Graph is one note collection with its indexes and metadata.
type Graph struct {
	Notes    map[string]*models.ExistingNote
	Indexes  Indexes
	Metadata models.GraphMetadata
}

// New returns an empty graph carrying meta.
func New(meta models.GraphMetadata) *Graph {
	return &Graph{
		Notes: make(map[string]*models.ExistingNote),
		Indexes: Indexes{
			Blocks:        make(map[string][]subwaytext.Block),
			OutgoingLinks: make(map[string]Set),
			Backlinks:     make(map[string]Set),
		},
		Metadata: meta,
	}
}

// FromParsed assembles a graph from notes whose blocks were parsed ahead of
// time and derives the link indexes.
func FromParsed(meta models.GraphMetadata, notes map[string]*models.ExistingNote, blocks map[string][]subwaytext.Block) *Graph {
	g := New(meta)
	for s, n := range notes {
		g.Notes[s] = n
		b, ok := blocks[s]
		if !ok {
			b = subwaytext.Parse(n.Content)
		}
		g.Indexes.Blocks[s] = b
	}
	g.BuildLinkIndexes()
	return g
}

// BuildLinkIndexes derives outgoing links and backlinks from the block index.
func (g *Graph) BuildLinkIndexes() {
	g.Indexes.OutgoingLinks = make(map[string]Set, len(g.Notes))
	g.Indexes.Backlinks = make(map[string]Set, len(g.Notes))
	for s := range g.Notes {
		g.Indexes.OutgoingLinks[s] = NoteLinks(g.Indexes.Blocks[s])
		g.ensureBacklinkEntry(s)
	}
	for s, targets := range g.Indexes.OutgoingLinks {
		for t := range targets {
			g.ensureBacklinkEntry(t)
			g.Indexes.Backlinks[t][s] = struct{}{}
		}
	}
}

// SetNote inserts or replaces a note, re-parses its content and updates the
// link indexes in place.
func (g *Graph) SetNote(n *models.ExistingNote) {
	s := n.Meta.Slug
	g.unlinkOutgoing(s)
	blocks := subwaytext.Parse(n.Content)
	g.Notes[s] = n
	g.Indexes.Blocks[s] = blocks

	targets := NoteLinks(blocks)
	g.Indexes.OutgoingLinks[s] = targets
	g.ensureBacklinkEntry(s)
	for t := range targets {
		g.ensureBacklinkEntry(t)
		g.Indexes.Backlinks[t][s] = struct{}{}
	}
}

// RemoveNote deletes a note and its outgoing edges. It reports whether the
// note existed. Links pointing at the removed slug become dangling.
func (g *Graph) RemoveNote(s string) bool {
	if _, ok := g.Notes[s]; !ok {
		return false
	}
	g.unlinkOutgoing(s)
	delete(g.Notes, s)
	delete(g.Indexes.Blocks, s)
	delete(g.Indexes.OutgoingLinks, s)
	if len(g.Indexes.Backlinks[s]) == 0 {
		delete(g.Indexes.Backlinks, s)
	}
	return true
}

func (g *Graph) unlinkOutgoing(s string) {
	for t := range g.Indexes.OutgoingLinks[s] {
		back := g.Indexes.Backlinks[t]
		delete(back, s)
		if len(back) == 0 {
			if _, isNote := g.Notes[t]; !isNote || t == s {
				delete(g.Indexes.Backlinks, t)
			}
		}
	}
	delete(g.Indexes.OutgoingLinks, s)
}

func (g *Graph) ensureBacklinkEntry(s string) {
	if _, ok := g.Indexes.Backlinks[s]; !ok {
		g.Indexes.Backlinks[s] = make(Set)
	}
}

// Has reports whether a note with slug s exists.
func (g *Graph) Has(s string) bool {
	_, ok := g.Notes[s]
	return ok
}

// Slugs returns all note slugs in ascending order.
func (g *Graph) Slugs() []string {
	out := make([]string, 0, len(g.Notes))
	for s := range g.Notes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Title returns the title inferred from a note's content.
func (g *Graph) Title(s string) string {
	n, ok := g.Notes[s]
	if !ok {
		return ""
	}
	return slug.InferTitle(n.Content)
}

// Outgoing returns the existing notes linked from s, sorted.
func (g *Graph) Outgoing(s string) []string {
	return g.existing(g.Indexes.OutgoingLinks[s])
}

// Incoming returns the existing notes linking to s, sorted.
func (g *Graph) Incoming(s string) []string {
	return g.existing(g.Indexes.Backlinks[s])
}

// LinkCount is the number of outgoing plus incoming links of s between
// existing notes.
func (g *Graph) LinkCount(s string) int {
	return len(g.Outgoing(s)) + len(g.Incoming(s))
}

// Files returns the attachment IDs referenced by s, sorted.
func (g *Graph) Files(s string) []string {
	return FileReferences(g.Indexes.Blocks[s]).Sorted()
}

func (g *Graph) existing(set Set) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		if g.Has(s) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
