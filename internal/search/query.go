package search

import (
	"strings"
	"unicode"
)

// Token is one query term. Bare and quoted terms have an empty Key.
type Token struct {
	Key   string
	Value string
}

// Tokenize splits q on whitespace outside double quotes and classifies each
// term as key:value, key:"quoted value", "quoted value" or bare.
func Tokenize(q string) []Token {
	var tokens []Token
	for _, raw := range splitOutsideQuotes(q) {
		if strings.HasPrefix(raw, `"`) {
			tokens = append(tokens, Token{Value: unquote(raw)})
			continue
		}
		key, value, found := strings.Cut(raw, ":")
		if !found || key == "" {
			tokens = append(tokens, Token{Value: raw})
			continue
		}
		tokens = append(tokens, Token{Key: key, Value: unquote(value)})
	}
	return tokens
}

func splitOutsideQuotes(q string) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range q {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case unicode.IsSpace(r) && !inQuotes:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return strings.TrimPrefix(s, `"`)
}

// FilterKind enumerates the query filters.
type FilterKind int

// Filter kinds.
const (
	FilterDefault FilterKind = iota
	FilterDuplicates
	FilterExact
	FilterHas
	FilterHasURL
	FilterHasFile
	FilterHasFlag
	FilterHasBlock
	FilterHasMedia
	FilterFullText
	FilterCustomMetadata
	FilterUnknown
)

var kindByKey = map[string]FilterKind{
	"duplicates": FilterDuplicates,
	"exact":      FilterExact,
	"has":        FilterHas,
	"has-url":    FilterHasURL,
	"has-file":   FilterHasFile,
	"has-flag":   FilterHasFlag,
	"has-block":  FilterHasBlock,
	"has-media":  FilterHasMedia,
	"ft":         FilterFullText,
}

// Filter is a compiled query term.
type Filter struct {
	Kind FilterKind
	// Key is the custom metadata key for FilterCustomMetadata.
	Key   string
	Value string
}

// Compile turns a query into its filter pipeline. Unrecognised keys compile
// to FilterUnknown, which matches nothing.
func Compile(q string) []Filter {
	tokens := Tokenize(q)
	filters := make([]Filter, 0, len(tokens))
	for _, t := range tokens {
		switch {
		case t.Key == "":
			filters = append(filters, Filter{Kind: FilterDefault, Value: t.Value})
		case strings.HasPrefix(t.Key, "$") && len(t.Key) > 1:
			filters = append(filters, Filter{Kind: FilterCustomMetadata, Key: t.Key[1:], Value: t.Value})
		default:
			kind, ok := kindByKey[t.Key]
			if !ok {
				kind = FilterUnknown
			}
			filters = append(filters, Filter{Kind: kind, Key: t.Key, Value: t.Value})
		}
	}
	return filters
}
