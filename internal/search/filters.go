package search

import (
	"strings"

	"github.com/starford/neno/internal/graph"
	"github.com/starford/neno/internal/models"
	"github.com/starford/neno/internal/subwaytext"
)

type evaluator struct {
	g             *graph.Graph
	caseSensitive bool
	titles        map[string]string
}

func newEvaluator(g *graph.Graph, caseSensitive bool) *evaluator {
	return &evaluator{g: g, caseSensitive: caseSensitive, titles: make(map[string]string)}
}

func (ev *evaluator) title(s string) string {
	t, ok := ev.titles[s]
	if !ok {
		t = ev.g.Title(s)
		ev.titles[s] = t
	}
	return t
}

func (ev *evaluator) fold(s string) string {
	if ev.caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func keep(slugs []string, pred func(string) bool) []string {
	out := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if pred(s) {
			out = append(out, s)
		}
	}
	return out
}

// apply narrows slugs by f.
func (ev *evaluator) apply(f Filter, slugs []string) []string {
	switch f.Kind {
	case FilterDefault:
		words := strings.Fields(ev.fold(f.Value))
		return keep(slugs, func(s string) bool {
			title, sl := ev.fold(ev.title(s)), ev.fold(s)
			for _, w := range words {
				if !strings.Contains(title, w) && !strings.Contains(sl, w) {
					return false
				}
			}
			return true
		})

	case FilterDuplicates:
		return ev.duplicates(f.Value, slugs)

	case FilterExact:
		want := ev.fold(f.Value)
		return keep(slugs, func(s string) bool { return ev.fold(ev.title(s)) == want })

	case FilterHas:
		if f.Value != "custom-metadata" {
			return nil
		}
		return keep(slugs, func(s string) bool { return len(ev.g.Notes[s].Meta.Custom) > 0 })

	case FilterHasURL:
		return keep(slugs, func(s string) bool {
			_, ok := graph.URLs(ev.g.Indexes.Blocks[s])[f.Value]
			return ok
		})

	case FilterHasFile:
		return keep(slugs, func(s string) bool {
			_, ok := graph.FileReferences(ev.g.Indexes.Blocks[s])[f.Value]
			return ok
		})

	case FilterHasFlag:
		return keep(slugs, func(s string) bool { return ev.g.Notes[s].HasFlag(f.Value) })

	case FilterHasBlock:
		types := make(map[subwaytext.BlockType]struct{})
		for _, name := range strings.Split(f.Value, "|") {
			if t, ok := subwaytext.ParseBlockType(name); ok {
				types[t] = struct{}{}
			}
		}
		return keep(slugs, func(s string) bool {
			for _, b := range ev.g.Indexes.Blocks[s] {
				if _, ok := types[b.Type]; ok {
					return true
				}
			}
			return false
		})

	case FilterHasMedia:
		types := make(map[models.MediaType]struct{})
		for _, t := range strings.Split(f.Value, "|") {
			types[models.MediaType(t)] = struct{}{}
		}
		return keep(slugs, func(s string) bool {
			for id := range graph.FileReferences(ev.g.Indexes.Blocks[s]) {
				if _, ok := types[models.MediaTypeOf(id)]; ok {
					return true
				}
			}
			return false
		})

	case FilterFullText:
		needle := ev.fold(f.Value)
		return keep(slugs, func(s string) bool { return strings.Contains(ev.fold(ev.g.Notes[s].Content), needle) })

	case FilterCustomMetadata:
		return keep(slugs, func(s string) bool {
			v, ok := ev.g.Notes[s].Meta.Custom[f.Key]
			if f.Value == "" {
				return ok
			}
			return ok && v == f.Value
		})

	case FilterUnknown:
		return nil
	}
	return nil
}

// duplicates keeps notes sharing a URL or a normalised title with another
// note of the current result set.
func (ev *evaluator) duplicates(by string, slugs []string) []string {
	var keysOf func(string) []string
	switch by {
	case "url":
		keysOf = func(s string) []string {
			return graph.URLs(ev.g.Indexes.Blocks[s]).Sorted()
		}
	case "title":
		keysOf = func(s string) []string {
			t := strings.ToLower(strings.TrimSpace(ev.title(s)))
			if t == "" {
				return nil
			}
			return []string{t}
		}
	default:
		return nil
	}

	holders := make(map[string]int)
	keys := make(map[string][]string, len(slugs))
	for _, s := range slugs {
		keys[s] = keysOf(s)
		for _, k := range keys[s] {
			holders[k]++
		}
	}
	return keep(slugs, func(s string) bool {
		for _, k := range keys[s] {
			if holders[k] > 1 {
				return true
			}
		}
		return false
	})
}

// NotesWithFlag returns the slugs of notes carrying exactly flag, sorted.
func NotesWithFlag(g *graph.Graph, flag string) []string {
	return keep(g.Slugs(), func(s string) bool { return g.Notes[s].HasFlag(flag) })
}
