// Package search runs queries over an indexed graph: a pipeline of filters,
// then sorting, an optional result limit and fixed-size pages.
package search

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/starford/neno/internal/graph"
	"github.com/starford/neno/internal/models"
	"github.com/starford/neno/internal/subwaytext"
)

// PageSize is the number of results per page.
const PageSize = 100

// SortMode orders search results.
type SortMode string

// Sort modes.
const (
	CreationDateAscending        SortMode = "CREATION_DATE_ASCENDING"
	CreationDateDescending       SortMode = "CREATION_DATE_DESCENDING"
	UpdateDateAscending          SortMode = "UPDATE_DATE_ASCENDING"
	UpdateDateDescending         SortMode = "UPDATE_DATE_DESCENDING"
	TitleAscending               SortMode = "TITLE_ASCENDING"
	TitleDescending              SortMode = "TITLE_DESCENDING"
	NumberOfLinksAscending       SortMode = "NUMBER_OF_LINKS_ASCENDING"
	NumberOfLinksDescending      SortMode = "NUMBER_OF_LINKS_DESCENDING"
	HasFilesAscending            SortMode = "HAS_FILES_ASCENDING"
	HasFilesDescending           SortMode = "HAS_FILES_DESCENDING"
	NumberOfCharactersAscending  SortMode = "NUMBER_OF_CHARACTERS_ASCENDING"
	NumberOfCharactersDescending SortMode = "NUMBER_OF_CHARACTERS_DESCENDING"
)

// DefaultSortMode is used when a request names none or an unknown one.
const DefaultSortMode = UpdateDateDescending

var sortModes = map[SortMode]bool{
	CreationDateAscending: true, CreationDateDescending: true,
	UpdateDateAscending: true, UpdateDateDescending: true,
	TitleAscending: true, TitleDescending: true,
	NumberOfLinksAscending: true, NumberOfLinksDescending: true,
	HasFilesAscending: true, HasFilesDescending: true,
	NumberOfCharactersAscending: true, NumberOfCharactersDescending: true,
}

// ParseSortMode returns the sort mode named s, or DefaultSortMode.
func ParseSortMode(s string) SortMode {
	if m := SortMode(strings.ToUpper(s)); sortModes[m] {
		return m
	}
	return DefaultSortMode
}

// Request describes one search.
type Request struct {
	Query         string
	CaseSensitive bool
	SortMode      SortMode
	// Page is 1-based; values below 1 select the first page.
	Page int
	// Limit caps the number of results before paging; 0 means no cap.
	Limit int
}

// Features summarise what a note contains.
type Features struct {
	ContainsWeblink   bool `json:"containsWeblink"`
	ContainsCode      bool `json:"containsCode"`
	ContainsImages    bool `json:"containsImages"`
	ContainsDocuments bool `json:"containsDocuments"`
	ContainsAudio     bool `json:"containsAudio"`
	ContainsVideo     bool `json:"containsVideo"`
}

// LinkCount counts the links between a note and other existing notes.
type LinkCount struct {
	Outgoing int `json:"outgoing"`
	Back     int `json:"back"`
	Sum      int `json:"sum"`
}

// NoteListItem is the projection of a note shown in result lists.
type NoteListItem struct {
	Slug               string    `json:"slug"`
	Title              string    `json:"title"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	Features           Features  `json:"features"`
	LinkCount          LinkCount `json:"linkCount"`
	NumberOfCharacters int       `json:"numberOfCharacters"`
	NumberOfFiles      int       `json:"numberOfFiles"`
}

// Page is one page of search results.
type Page struct {
	Results         []NoteListItem `json:"results"`
	NumberOfResults int            `json:"numberOfResults"`
	Page            int            `json:"page"`
	PageSize        int            `json:"pageSize"`
}

// Run executes req against g. Filters apply left to right, each narrowing
// the previous result.
func Run(g *graph.Graph, req Request) Page {
	ev := newEvaluator(g, req.CaseSensitive)
	slugs := g.Slugs()
	for _, f := range Compile(req.Query) {
		slugs = ev.apply(f, slugs)
		if len(slugs) == 0 {
			break
		}
	}

	mode := req.SortMode
	if !sortModes[mode] {
		mode = DefaultSortMode
	}
	page := max(req.Page, 1)

	if isPrimitive(mode) {
		sortSlugs(g, mode, slugs)
		slugs = limit(slugs, req.Limit)
		window := pageWindow(slugs, page)
		items := make([]NoteListItem, 0, len(window))
		for _, s := range window {
			items = append(items, Project(g, s))
		}
		return Page{Results: items, NumberOfResults: len(slugs), Page: page, PageSize: PageSize}
	}

	items := make([]NoteListItem, 0, len(slugs))
	for _, s := range slugs {
		items = append(items, Project(g, s))
	}
	sortItems(mode, items)
	items = limit(items, req.Limit)
	return Page{Results: pageWindow(items, page), NumberOfResults: len(items), Page: page, PageSize: PageSize}
}

// Project builds the list item of note s.
func Project(g *graph.Graph, s string) NoteListItem {
	n := g.Notes[s]
	blocks := g.Indexes.Blocks[s]
	files := graph.FileReferences(blocks)

	var f Features
	for _, b := range blocks {
		switch b.Type {
		case subwaytext.BlockURL:
			f.ContainsWeblink = true
		case subwaytext.BlockCode:
			f.ContainsCode = true
		}
		for _, sp := range b.Spans() {
			if sp.Type == subwaytext.SpanHyperlink {
				f.ContainsWeblink = true
			}
		}
	}
	for id := range files {
		switch models.MediaTypeOf(id) {
		case models.MediaImage:
			f.ContainsImages = true
		case models.MediaPDF:
			f.ContainsDocuments = true
		case models.MediaAudio:
			f.ContainsAudio = true
		case models.MediaVideo:
			f.ContainsVideo = true
		}
	}

	out, back := len(g.Outgoing(s)), len(g.Incoming(s))
	return NoteListItem{
		Slug:               s,
		Title:              g.Title(s),
		CreatedAt:          n.Meta.CreatedAt,
		UpdatedAt:          n.Meta.UpdatedAt,
		Features:           f,
		LinkCount:          LinkCount{Outgoing: out, Back: back, Sum: out + back},
		NumberOfCharacters: utf8.RuneCountInString(n.Content),
		NumberOfFiles:      len(files),
	}
}

// isPrimitive reports whether mode needs only stored note fields, so results
// can be sorted and paged before projection.
func isPrimitive(mode SortMode) bool {
	switch mode {
	case CreationDateAscending, CreationDateDescending,
		UpdateDateAscending, UpdateDateDescending,
		NumberOfCharactersAscending, NumberOfCharactersDescending:
		return true
	}
	return false
}

func sortSlugs(g *graph.Graph, mode SortMode, slugs []string) {
	var compare func(a, b *models.ExistingNote) int
	switch mode {
	case CreationDateAscending, CreationDateDescending:
		compare = func(a, b *models.ExistingNote) int { return a.Meta.CreatedAt.Compare(b.Meta.CreatedAt) }
	case UpdateDateAscending, UpdateDateDescending:
		compare = func(a, b *models.ExistingNote) int { return a.Meta.UpdatedAt.Compare(b.Meta.UpdatedAt) }
	default:
		compare = func(a, b *models.ExistingNote) int {
			return utf8.RuneCountInString(a.Content) - utf8.RuneCountInString(b.Content)
		}
	}
	desc := strings.HasSuffix(string(mode), "_DESCENDING")
	sort.SliceStable(slugs, func(i, j int) bool {
		c := compare(g.Notes[slugs[i]], g.Notes[slugs[j]])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func sortItems(mode SortMode, items []NoteListItem) {
	var cmp func(a, b NoteListItem) int
	switch mode {
	case TitleAscending, TitleDescending:
		col := collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics)
		keys := make(map[string]string, len(items))
		for _, it := range items {
			keys[it.Slug] = stripPunctuation(it.Title)
		}
		cmp = func(a, b NoteListItem) int { return col.CompareString(keys[a.Slug], keys[b.Slug]) }
	case NumberOfLinksAscending, NumberOfLinksDescending:
		cmp = func(a, b NoteListItem) int { return a.LinkCount.Sum - b.LinkCount.Sum }
	default:
		cmp = func(a, b NoteListItem) int { return boolInt(a.NumberOfFiles > 0) - boolInt(b.NumberOfFiles > 0) }
	}
	desc := strings.HasSuffix(string(mode), "_DESCENDING")
	sort.SliceStable(items, func(i, j int) bool {
		c := cmp(items[i], items[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func stripPunctuation(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, s))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func limit[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

func pageWindow[T any](s []T, page int) []T {
	start := (page - 1) * PageSize
	if start >= len(s) {
		return []T{}
	}
	return s[start:min(start+PageSize, len(s))]
}
