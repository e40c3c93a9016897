package types

import "strings"

// BlockKind tags the variant of a Block
type BlockKind string

const (
	BlockHeading   BlockKind = "heading"
	BlockParagraph BlockKind = "paragraph"
	BlockList      BlockKind = "list"
	BlockQuote     BlockKind = "quote"
	BlockCode      BlockKind = "code"
)

// Span is a run of inline text sharing the same markup.
// A non-empty Href makes the span a link.
type Span struct {
	Text     string `json:"text"`
	Strong   bool   `json:"strong,omitempty"`
	Emphasis bool   `json:"emphasis,omitempty"`
	Code     bool   `json:"code,omitempty"`
	Href     string `json:"href,omitempty"`
}

// Plain reports whether the span carries no markup at all
func (s Span) Plain() bool {
	return !s.Strong && !s.Emphasis && !s.Code && s.Href == ""
}

// SameMarkup reports whether two spans differ only in text
func (s Span) SameMarkup(o Span) bool {
	return s.Strong == o.Strong && s.Emphasis == o.Emphasis && s.Code == o.Code && s.Href == o.Href
}

// Block is one node of the canonical document.
//
// Which fields are meaningful depends on Kind:
//   - heading: Level (1-6) and Spans
//   - paragraph, quote: Spans
//   - list: Ordered and Items (one span sequence per item)
//   - code: Language and Code
type Block struct {
	Kind     BlockKind `json:"kind"`
	Level    int       `json:"level,omitempty"`
	Ordered  bool      `json:"ordered,omitempty"`
	Language string    `json:"language,omitempty"`
	Spans    []Span    `json:"spans,omitempty"`
	Items    [][]Span  `json:"items,omitempty"`
	Code     string    `json:"code,omitempty"`
}

// Heading builds a heading block from plain text
func Heading(level int, text string) Block {
	return Block{Kind: BlockHeading, Level: level, Spans: []Span{{Text: text}}}
}

// Paragraph builds a paragraph block from spans
func Paragraph(spans ...Span) Block {
	return Block{Kind: BlockParagraph, Spans: spans}
}

// List builds a list block whose items are plain text
func List(ordered bool, items ...string) Block {
	b := Block{Kind: BlockList, Ordered: ordered, Items: make([][]Span, 0, len(items))}
	for _, item := range items {
		b.Items = append(b.Items, []Span{{Text: item}})
	}
	return b
}

// Text returns the block's plain text with markup removed.
// List items are separated by newlines.
func (b Block) Text() string {
	switch b.Kind {
	case BlockCode:
		return b.Code
	case BlockList:
		parts := make([]string, 0, len(b.Items))
		for _, item := range b.Items {
			parts = append(parts, SpansText(item))
		}
		return strings.Join(parts, "\n")
	default:
		return SpansText(b.Spans)
	}
}

// SpansText concatenates the text of spans
func SpansText(spans []Span) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// Document is the canonical in-memory content representation.
// A Document belongs to the pipeline run that created it.
type Document struct {
	// Origin is the primary format the content was generated in (may be empty)
	Origin Format  `json:"origin,omitempty"`
	Blocks []Block `json:"blocks"`
}

// Title returns the text of the first heading, or "" if there is none
func (d *Document) Title() string {
	for _, b := range d.Blocks {
		if b.Kind == BlockHeading {
			return strings.TrimSpace(b.Text())
		}
	}
	return ""
}

// PlainText returns all block text separated by blank lines
func (d *Document) PlainText() string {
	parts := make([]string, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		parts = append(parts, b.Text())
	}
	return strings.Join(parts, "\n\n")
}

// WordCount counts whitespace-separated words across all blocks
func (d *Document) WordCount() int {
	return len(strings.Fields(d.PlainText()))
}
