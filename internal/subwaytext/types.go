// Package subwaytext parses the subwaytext markup language into typed blocks.
//
// Parsing is a pure, total function: every string yields a block sequence and
// no state is kept between calls, so Parse is safe to call from many
// goroutines at once.
package subwaytext

import (
	"encoding/json"
	"fmt"
	"slices"
)

// BlockType identifies the structural kind of a block.
type BlockType string

// Block types.
const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockList      BlockType = "list"
	BlockCode      BlockType = "code"
	BlockQuote     BlockType = "quote"
	BlockSlashlink BlockType = "slashlink"
	BlockURL       BlockType = "url"
)

// AllBlockTypes lists every block type the parser can emit.
var AllBlockTypes = []BlockType{
	BlockHeading, BlockParagraph, BlockList, BlockCode,
	BlockQuote, BlockSlashlink, BlockURL,
}

// ParseBlockType returns the block type named s. Unknown names report false.
func ParseBlockType(s string) (BlockType, bool) {
	t := BlockType(s)
	return t, slices.Contains(AllBlockTypes, t)
}

// SpanType identifies an inline run within a block.
type SpanType string

// Span types.
const (
	SpanNormalText SpanType = "normal-text"
	SpanHyperlink  SpanType = "hyperlink"
	SpanSlashlink  SpanType = "slashlink"
	SpanWikilink   SpanType = "wikilink"
)

// Span is an inline run of text. For wikilinks Text holds the inner text
// without brackets; for slashlinks it includes the leading slash.
type Span struct {
	Type SpanType `json:"type"`
	Text string   `json:"text"`
}

// Block is one parsed unit of note content. Data holds one of the *Data
// types below, matching Type.
type Block struct {
	Type BlockType `json:"type"`
	Data BlockData `json:"data"`
}

type rawBlock struct {
	Type BlockType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UnmarshalJSON decodes the payload into the *Data type matching Type.
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw rawBlock
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var (
		d   BlockData
		err error
	)
	switch raw.Type {
	case BlockHeading:
		d, err = decodeData[HeadingData](raw.Data)
	case BlockParagraph:
		d, err = decodeData[ParagraphData](raw.Data)
	case BlockList:
		d, err = decodeData[ListData](raw.Data)
	case BlockCode:
		d, err = decodeData[CodeData](raw.Data)
	case BlockQuote:
		d, err = decodeData[QuoteData](raw.Data)
	case BlockSlashlink:
		d, err = decodeData[SlashlinkData](raw.Data)
	case BlockURL:
		d, err = decodeData[URLData](raw.Data)
	default:
		return fmt.Errorf("subwaytext: unknown block type %q", raw.Type)
	}
	if err != nil {
		return fmt.Errorf("subwaytext: %s block: %w", raw.Type, err)
	}
	*b = Block{Type: raw.Type, Data: d}
	return nil
}

func decodeData[T BlockData](data json.RawMessage) (BlockData, error) {
	var v T
	if len(data) == 0 || string(data) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// BlockData is implemented by the per-type payloads.
type BlockData interface {
	blockData()
}

// HeadingData is the payload of a heading block.
type HeadingData struct {
	Text string `json:"text"`
}

// ParagraphData is the payload of a paragraph block.
type ParagraphData struct {
	Text []Span `json:"text"`
}

// ListItem is one entry of a list block.
type ListItem struct {
	Text []Span `json:"text"`
}

// ListData is the payload of a list block.
type ListData struct {
	Ordered bool       `json:"ordered"`
	Items   []ListItem `json:"items"`
}

// CodeData is the payload of a code block.
type CodeData struct {
	Language string `json:"language"`
	Content  string `json:"content"`
}

// QuoteData is the payload of a quote block.
type QuoteData struct {
	Text []Span `json:"text"`
}

// SlashlinkData is the payload of a standalone slashlink block.
type SlashlinkData struct {
	Link string `json:"link"`
	Text string `json:"text"`
}

// URLData is the payload of a standalone URL block.
type URLData struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

func (HeadingData) blockData()   {}
func (ParagraphData) blockData() {}
func (ListData) blockData()      {}
func (CodeData) blockData()      {}
func (QuoteData) blockData()     {}
func (SlashlinkData) blockData() {}
func (URLData) blockData()       {}

// Spans returns all inline spans of a block in document order. Blocks
// without span-parsed text return nil.
func (b Block) Spans() []Span {
	switch d := b.Data.(type) {
	case ParagraphData:
		return d.Text
	case QuoteData:
		return d.Text
	case ListData:
		var out []Span
		for _, item := range d.Items {
			out = append(out, item.Text...)
		}
		return out
	}
	return nil
}
