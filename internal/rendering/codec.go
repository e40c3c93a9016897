package rendering

import (
	"strings"
	"unicode"

	"github.com/jonathan/echo-pipeline/internal/types"
)

// Encode renders doc in the given format.
// It fails with *CodecError when a block cannot be represented; nothing is dropped silently.
func Encode(doc *types.Document, format types.Format) (string, error) {
	if doc == nil {
		return "", &CodecError{Format: format, Index: -1, Message: "document is nil"}
	}
	for i, b := range doc.Blocks {
		if err := checkBlock(format, i, b); err != nil {
			return "", err
		}
	}

	switch format {
	case types.FormatMarkdown:
		return encodeMarkdown(doc), nil
	case types.FormatHTML:
		return encodeHTML(doc)
	case types.FormatJSONLD:
		return encodeJSONLD(doc)
	default:
		return "", &CodecError{Format: format, Index: -1, Message: "unsupported format"}
	}
}

// Decode parses body written in the given format back into a Document
func Decode(body string, format types.Format) (*types.Document, error) {
	switch format {
	case types.FormatMarkdown:
		return decodeMarkdown(body)
	case types.FormatHTML:
		return decodeHTML(body)
	case types.FormatJSONLD:
		return decodeJSONLD(body)
	default:
		return nil, &CodecError{Format: format, Index: -1, Message: "unsupported format"}
	}
}

func checkBlock(format types.Format, i int, b types.Block) error {
	switch b.Kind {
	case types.BlockHeading:
		if b.Level < 1 || b.Level > 6 {
			return &CodecError{Format: format, BlockKind: b.Kind, Index: i, Message: "heading level must be between 1 and 6"}
		}
	case types.BlockParagraph, types.BlockList, types.BlockQuote:
	case types.BlockCode:
		if format == types.FormatJSONLD {
			return &CodecError{Format: format, BlockKind: b.Kind, Index: i, Message: "code blocks have no JSON-LD representation"}
		}
	default:
		return &CodecError{Format: format, BlockKind: b.Kind, Index: i, Message: "unsupported block kind"}
	}
	return nil
}

// normalizeSpans drops empty spans, strips markup from whitespace-only spans,
// moves surrounding whitespace out of styled spans and merges neighbours with equal markup.
func normalizeSpans(spans []types.Span) []types.Span {
	out := make([]types.Span, 0, len(spans))
	push := func(s types.Span) {
		if s.Text == "" {
			return
		}
		if n := len(out); n > 0 && out[n-1].SameMarkup(s) {
			out[n-1].Text += s.Text
			return
		}
		out = append(out, s)
	}

	for _, s := range spans {
		if s.Text == "" {
			continue
		}
		if strings.TrimSpace(s.Text) == "" {
			push(types.Span{Text: s.Text})
			continue
		}
		if s.Plain() || s.Code {
			push(s)
			continue
		}
		trimmed := strings.TrimLeftFunc(s.Text, unicode.IsSpace)
		lead := s.Text[:len(s.Text)-len(trimmed)]
		core := strings.TrimRightFunc(trimmed, unicode.IsSpace)
		trail := trimmed[len(core):]

		push(types.Span{Text: lead})
		s.Text = core
		push(s)
		push(types.Span{Text: trail})
	}
	return out
}

// isEmptyBlock reports whether a block carries no visible content
func isEmptyBlock(b types.Block) bool {
	switch b.Kind {
	case types.BlockList:
		return len(b.Items) == 0
	case types.BlockCode:
		return strings.TrimSpace(b.Code) == ""
	default:
		return strings.TrimSpace(types.SpansText(b.Spans)) == ""
	}
}
