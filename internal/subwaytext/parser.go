package subwaytext

import (
	"strings"
	"unicode"
)

const codeFence = "```"

// Parse translates input into an ordered block sequence. Empty input yields
// an empty sequence.
func Parse(input string) []Block {
	blocks := make([]Block, 0)
	if input == "" {
		return blocks
	}

	lines := strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n")
	for i := 0; i < len(lines); {
		line := lines[i]
		switch {
		case strings.TrimSpace(line) == "":
			i++

		case strings.HasPrefix(line, codeFence):
			var b Block
			b, i = parseCode(lines, i)
			blocks = append(blocks, b)

		case strings.HasPrefix(line, "#"):
			blocks = append(blocks, Block{
				Type: BlockHeading,
				Data: HeadingData{Text: strings.TrimSpace(line[1:])},
			})
			i++

		case isListLine(line):
			var b Block
			b, i = parseList(lines, i)
			blocks = append(blocks, b)

		case strings.HasPrefix(line, ">"):
			var b Block
			b, i = parseQuote(lines, i)
			blocks = append(blocks, b)

		case isSlashlinkLine(line):
			link, text := splitFirstToken(line)
			blocks = append(blocks, Block{
				Type: BlockSlashlink,
				Data: SlashlinkData{Link: link, Text: text},
			})
			i++

		case isURLLine(line):
			u, text := splitFirstToken(line)
			blocks = append(blocks, Block{
				Type: BlockURL,
				Data: URLData{URL: u, Text: text},
			})
			i++

		default:
			var b Block
			b, i = parseParagraph(lines, i)
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// parseCode consumes a fenced code block starting at lines[start]. A block
// without a closing fence runs to the end of input.
func parseCode(lines []string, start int) (Block, int) {
	lang := strings.TrimSpace(lines[start][len(codeFence):])
	var content []string
	i := start + 1
	for ; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t") == codeFence {
			i++
			break
		}
		content = append(content, lines[i])
	}
	text := strings.ReplaceAll(strings.Join(content, "\n"), `\`+codeFence, codeFence)
	return Block{Type: BlockCode, Data: CodeData{Language: lang, Content: text}}, i
}

func parseList(lines []string, start int) (Block, int) {
	ordered := isOrderedListLine(lines[start])
	var items []ListItem
	i := start
	for ; i < len(lines); i++ {
		line := lines[i]
		if !isListLine(line) || isOrderedListLine(line) != ordered {
			break
		}
		items = append(items, ListItem{Text: ParseSpans(listItemText(line, ordered))})
	}
	return Block{Type: BlockList, Data: ListData{Ordered: ordered, Items: items}}, i
}

func listItemText(line string, ordered bool) string {
	if !ordered {
		return strings.TrimSpace(line[1:])
	}
	dot := strings.IndexByte(line, '.')
	return strings.TrimSpace(line[dot+1:])
}

func parseQuote(lines []string, start int) (Block, int) {
	var parts []string
	i := start
	for ; i < len(lines) && strings.HasPrefix(lines[i], ">"); i++ {
		parts = append(parts, strings.TrimSpace(lines[i][1:]))
	}
	return Block{Type: BlockQuote, Data: QuoteData{Text: ParseSpans(strings.Join(parts, "\n"))}}, i
}

func parseParagraph(lines []string, start int) (Block, int) {
	parts := []string{lines[start]}
	i := start + 1
	for ; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" || startsBlock(lines[i]) {
			break
		}
		parts = append(parts, lines[i])
	}
	return Block{Type: BlockParagraph, Data: ParagraphData{Text: ParseSpans(strings.Join(parts, "\n"))}}, i
}

func startsBlock(line string) bool {
	return strings.HasPrefix(line, codeFence) ||
		strings.HasPrefix(line, "#") ||
		strings.HasPrefix(line, ">") ||
		isListLine(line) ||
		isSlashlinkLine(line) ||
		isURLLine(line)
}

func isListLine(line string) bool {
	return strings.HasPrefix(line, "-") || isOrderedListLine(line)
}

// isOrderedListLine reports whether line starts with digits followed by a dot.
func isOrderedListLine(line string) bool {
	n := 0
	for n < len(line) && line[n] >= '0' && line[n] <= '9' {
		n++
	}
	return n > 0 && n < len(line) && line[n] == '.'
}

func isSlashlinkLine(line string) bool {
	token, _ := splitFirstToken(line)
	return token != "" && slashlinkLen([]rune(token)) == len([]rune(token))
}

func isURLLine(line string) bool {
	token, _ := splitFirstToken(line)
	return hyperlinkLen([]rune(token)) > 0
}

// splitFirstToken splits line at its first whitespace run and returns the
// leading token and the trimmed remainder.
func splitFirstToken(line string) (string, string) {
	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx:])
}
