package subwaytext

import (
	"strings"
	"unicode"
)

// ParseSpans tokenizes inline text into normal text, hyperlinks, slashlinks
// and wikilinks. Adjacent normal text is merged into one span.
func ParseSpans(text string) []Span {
	runes := []rune(text)
	var spans []Span
	var normal strings.Builder

	flush := func() {
		if normal.Len() > 0 {
			spans = append(spans, Span{Type: SpanNormalText, Text: normal.String()})
			normal.Reset()
		}
	}

	for i := 0; i < len(runes); {
		atBoundary := i == 0 || unicode.IsSpace(runes[i-1])
		if atBoundary {
			if n := hyperlinkLen(runes[i:]); n > 0 {
				flush()
				spans = append(spans, Span{Type: SpanHyperlink, Text: string(runes[i : i+n])})
				i += n
				continue
			}
			if n := slashlinkLen(runes[i:]); n > 0 {
				flush()
				spans = append(spans, Span{Type: SpanSlashlink, Text: string(runes[i : i+n])})
				i += n
				continue
			}
		}
		if n := wikilinkLen(runes[i:]); n > 0 {
			flush()
			spans = append(spans, Span{Type: SpanWikilink, Text: string(runes[i+2 : i+n-2])})
			i += n
			continue
		}
		normal.WriteRune(runes[i])
		i++
	}
	flush()
	return spans
}

// hyperlinkLen returns the length of an http(s) URL at the start of r,
// terminated by whitespace, or 0.
func hyperlinkLen(r []rune) int {
	var n int
	switch {
	case hasRunePrefix(r, "https://"):
		n = len("https://")
	case hasRunePrefix(r, "http://"):
		n = len("http://")
	default:
		return 0
	}
	start := n
	for n < len(r) && !unicode.IsSpace(r[n]) {
		n++
	}
	if n == start {
		return 0
	}
	return n
}

func hasRunePrefix(r []rune, prefix string) bool {
	if len(r) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if r[i] != rune(prefix[i]) {
			return false
		}
	}
	return true
}

// slashlinkLen returns the length of a slashlink at the start of r, or 0.
// The character after the slash and the last character must be word
// characters, so "Tools / Thought" is not a link.
func slashlinkLen(r []rune) int {
	if len(r) < 2 || r[0] != '/' || !isWordChar(r[1]) {
		return 0
	}
	n := 1
	for n < len(r) && isSlashlinkChar(r[n]) {
		n++
	}
	for n > 1 && !isWordChar(r[n-1]) {
		n--
	}
	return n
}

// wikilinkLen returns the length of a [[...]] run at the start of r, or 0.
// The inner text must be non-empty and free of brackets.
func wikilinkLen(r []rune) int {
	if len(r) < 5 || r[0] != '[' || r[1] != '[' {
		return 0
	}
	for j := 2; j < len(r); j++ {
		switch r[j] {
		case '[':
			return 0
		case ']':
			if j > 2 && j+1 < len(r) && r[j+1] == ']' {
				return j + 2
			}
			return 0
		}
	}
	return 0
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

func isSlashlinkChar(r rune) bool {
	return isWordChar(r) || r == '-' || r == '/' || r == '.'
}
