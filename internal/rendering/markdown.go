package rendering

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/jonathan/echo-pipeline/internal/types"
)

var markdownParser = goldmark.New().Parser()

func encodeMarkdown(doc *types.Document) string {
	parts := make([]string, 0, len(doc.Blocks))
	var prevList *types.Block
	alternate := false

	for i := range doc.Blocks {
		b := doc.Blocks[i]
		if b.Kind == types.BlockList {
			// adjacent lists of the same type only stay separate when their markers differ
			if prevList != nil && prevList.Ordered == b.Ordered {
				alternate = !alternate
			} else {
				alternate = false
			}
			prevList = &doc.Blocks[i]
		} else {
			prevList = nil
		}

		var out string
		switch b.Kind {
		case types.BlockHeading:
			out = strings.TrimRight(strings.Repeat("#", b.Level)+" "+markdownLine(b.Spans), " ")
		case types.BlockParagraph:
			out = markdownInline(b.Spans)
		case types.BlockQuote:
			out = ">"
			if content := markdownInline(b.Spans); content != "" {
				out = "> " + strings.ReplaceAll(content, "\n", "\n> ")
			}
		case types.BlockList:
			out = markdownList(b, alternate)
		case types.BlockCode:
			out = markdownCode(b)
		}
		if out != "" {
			parts = append(parts, out)
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n") + "\n"
}

func markdownList(b types.Block, alternate bool) string {
	lines := make([]string, 0, len(b.Items))
	for n, item := range b.Items {
		var marker string
		switch {
		case b.Ordered && alternate:
			marker = fmt.Sprintf("%d)", n+1)
		case b.Ordered:
			marker = fmt.Sprintf("%d.", n+1)
		case alternate:
			marker = "*"
		default:
			marker = "-"
		}
		if content := markdownLine(item); content != "" {
			marker += " " + content
		}
		lines = append(lines, marker)
	}
	return strings.Join(lines, "\n")
}

func markdownCode(b types.Block) string {
	fenceChar := "`"
	if strings.Contains(b.Language, "`") {
		fenceChar = "~"
	}
	fence := strings.Repeat(fenceChar, max(3, longestRun(b.Code, rune(fenceChar[0]))+1))

	var sb strings.Builder
	sb.WriteString(fence)
	sb.WriteString(strings.TrimSpace(b.Language))
	sb.WriteByte('\n')
	if b.Code != "" {
		sb.WriteString(b.Code)
		if !strings.HasSuffix(b.Code, "\n") {
			sb.WriteByte('\n')
		}
	}
	sb.WriteString(fence)
	return sb.String()
}

// markdownLine renders inline content that must stay on one line
func markdownLine(spans []types.Span) string {
	flat := make([]types.Span, len(spans))
	for i, s := range spans {
		s.Text = strings.ReplaceAll(s.Text, "\n", " ")
		flat[i] = s
	}
	return markdownInline(flat)
}

const boundary = ' '

func markdownInline(spans []types.Span) string {
	return escapeLineStarts(renderGroups(normalizeSpans(spans), levelLink, boundary, boundary))
}

type inlineLevel int

const (
	levelLink inlineLevel = iota
	levelStrong
	levelEmphasis
	levelLeaf
)

type spanGroup struct {
	styled bool
	href   string
	spans  []types.Span
}

func groupKey(s types.Span, level inlineLevel) (bool, string) {
	switch level {
	case levelLink:
		return s.Href != "", s.Href
	case levelStrong:
		return s.Strong, ""
	default:
		return s.Emphasis, ""
	}
}

func splitGroups(spans []types.Span, level inlineLevel) []spanGroup {
	var groups []spanGroup
	for _, s := range spans {
		styled, href := groupKey(s, level)
		n := len(groups)
		if n > 0 && groups[n-1].styled == styled && groups[n-1].href == href {
			groups[n-1].spans = append(groups[n-1].spans, s)
			continue
		}
		groups = append(groups, spanGroup{styled: styled, href: href, spans: []types.Span{s}})
	}
	return groups
}

func stripStyle(spans []types.Span, level inlineLevel) []types.Span {
	out := make([]types.Span, len(spans))
	for i, s := range spans {
		switch level {
		case levelLink:
			s.Href = ""
		case levelStrong:
			s.Strong = false
		case levelEmphasis:
			s.Emphasis = false
		}
		out[i] = s
	}
	return out
}

// renderGroups writes spans nested as link > strong > emphasis > code.
// before and after are the runes surrounding the rendered text, used to decide
// whether emphasis delimiters will be recognised or inline HTML tags are needed.
func renderGroups(spans []types.Span, level inlineLevel, before, after rune) string {
	if level == levelLeaf {
		var sb strings.Builder
		for _, s := range spans {
			if s.Code {
				sb.WriteString(markdownCodeSpan(s.Text))
			} else {
				sb.WriteString(EscapeMarkdown(s.Text))
			}
		}
		return sb.String()
	}

	// runes written around a styled group: link text sits in brackets,
	// strong and emphasis content between delimiters or tags
	open, closing := '*', '*'
	if level == levelLink {
		open, closing = '[', ']'
	}

	groups := splitGroups(spans, level)
	inner := make([]string, len(groups))
	for i, g := range groups {
		if g.styled {
			inner[i] = renderGroups(stripStyle(g.spans, level), level+1, open, closing)
			continue
		}
		b, a := before, after
		if i > 0 {
			b = '*'
			if level == levelLink {
				b = ')'
			}
		}
		if i < len(groups)-1 {
			a = '*'
			if level == levelLink {
				a = '['
			}
		}
		inner[i] = renderGroups(g.spans, level+1, b, a)
	}

	var sb strings.Builder
	for i, g := range groups {
		if !g.styled {
			sb.WriteString(inner[i])
			continue
		}
		if level == levelLink {
			sb.WriteString("[" + inner[i] + "](" + escapeDestination(g.href) + ")")
			continue
		}

		prev := before
		if sb.Len() > 0 {
			prev, _ = utf8.DecodeLastRuneInString(sb.String())
		}
		next := after
		if i < len(groups)-1 {
			next = firstRune(inner[i+1])
			if groups[i+1].styled {
				next = '*'
			}
		}

		delim, openTag, closeTag := "*", "<em>", "</em>"
		if level == levelStrong {
			delim, openTag, closeTag = "**", "<strong>", "</strong>"
		}
		// a delimiter next to another '*' merges into one run and parses differently
		if prev != '*' && next != '*' && flanks(prev, inner[i], next) {
			sb.WriteString(delim + inner[i] + delim)
		} else {
			sb.WriteString(openTag + inner[i] + closeTag)
		}
	}
	return sb.String()
}

// flanks reports whether delimiters around content would be parsed as an opener and closer
func flanks(prev rune, content string, next rune) bool {
	if content == "" {
		return false
	}
	first := firstRune(content)
	last, _ := utf8.DecodeLastRuneInString(content)

	opens := !unicode.IsSpace(first) && (!isPunctRune(first) || unicode.IsSpace(prev) || isPunctRune(prev))
	closes := !unicode.IsSpace(last) && (!isPunctRune(last) || unicode.IsSpace(next) || isPunctRune(next))
	return opens && closes
}

func isPunctRune(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func markdownCodeSpan(code string) string {
	code = strings.ReplaceAll(code, "\n", " ")
	fence := strings.Repeat("`", longestRun(code, '`')+1)
	if strings.HasPrefix(code, "`") || strings.HasSuffix(code, "`") ||
		strings.HasPrefix(code, " ") || strings.HasSuffix(code, " ") {
		code = " " + code + " "
	}
	return fence + code + fence
}

func decodeMarkdown(body string) (*types.Document, error) {
	source := []byte(body)
	root := markdownParser.Parse(text.NewReader(source))

	d := &markdownDecoder{source: source}
	doc := &types.Document{Origin: types.FormatMarkdown, Blocks: []types.Block{}}
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if err := d.block(doc, n); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

type markdownDecoder struct {
	source []byte
}

func (d *markdownDecoder) block(doc *types.Document, n ast.Node) error {
	switch node := n.(type) {
	case *ast.Heading:
		doc.Blocks = append(doc.Blocks, types.Block{Kind: types.BlockHeading, Level: node.Level, Spans: d.inline(node)})
	case *ast.Paragraph, *ast.TextBlock:
		doc.Blocks = append(doc.Blocks, types.Paragraph(d.inline(node)...))
	case *ast.Blockquote:
		doc.Blocks = append(doc.Blocks, types.Block{Kind: types.BlockQuote, Spans: d.flatten(node)})
	case *ast.List:
		doc.Blocks = append(doc.Blocks, types.Block{Kind: types.BlockList, Ordered: node.IsOrdered(), Items: d.listItems(node)})
	case *ast.FencedCodeBlock:
		doc.Blocks = append(doc.Blocks, types.Block{
			Kind:     types.BlockCode,
			Language: string(node.Language(d.source)),
			Code:     d.lines(node),
		})
	case *ast.CodeBlock:
		doc.Blocks = append(doc.Blocks, types.Block{Kind: types.BlockCode, Code: d.lines(node)})
	case *ast.ThematicBreak:
	case *ast.HTMLBlock:
		return &CodecError{Format: types.FormatMarkdown, BlockKind: "html", Index: len(doc.Blocks), Message: "raw HTML blocks are not supported"}
	default:
		return &CodecError{Format: types.FormatMarkdown, BlockKind: types.BlockKind(n.Kind().String()), Index: len(doc.Blocks), Message: "unsupported markdown node"}
	}
	return nil
}

func (d *markdownDecoder) lines(n ast.Node) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(d.source))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// listItems returns one span sequence per item; nested lists become the items that follow their parent
func (d *markdownDecoder) listItems(list *ast.List) [][]types.Span {
	items := [][]types.Span{}
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var spans []types.Span
		var nested [][]types.Span
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if sub, ok := c.(*ast.List); ok {
				nested = append(nested, d.listItems(sub)...)
				continue
			}
			if len(spans) > 0 {
				spans = appendSpan(spans, types.Span{Text: " "})
			}
			for _, s := range d.flatten(c) {
				spans = appendSpan(spans, s)
			}
		}
		if spans == nil {
			spans = []types.Span{}
		}
		items = append(items, spans)
		items = append(items, nested...)
	}
	return items
}

// flatten collects the inline content of every text-bearing descendant, separated by spaces
func (d *markdownDecoder) flatten(n ast.Node) []types.Span {
	switch n.(type) {
	case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
		return d.inline(n)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return []types.Span{{Text: d.lines(n)}}
	}
	var spans []types.Span
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if len(spans) > 0 {
			spans = appendSpan(spans, types.Span{Text: " "})
		}
		for _, s := range d.flatten(c) {
			spans = appendSpan(spans, s)
		}
	}
	return spans
}

type rawTags struct {
	strong   int
	emphasis int
}

func (d *markdownDecoder) inline(n ast.Node) []types.Span {
	var spans []types.Span
	raw := &rawTags{}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		spans = d.inlineNode(spans, c, types.Span{}, raw)
	}
	return spans
}

func (d *markdownDecoder) inlineNode(spans []types.Span, n ast.Node, style types.Span, raw *rawTags) []types.Span {
	emit := func(s types.Span) []types.Span {
		s.Strong = s.Strong || raw.strong > 0
		s.Emphasis = s.Emphasis || raw.emphasis > 0
		return appendSpan(spans, s)
	}

	switch node := n.(type) {
	case *ast.Text:
		s := style
		s.Text = unescapeMarkdown(string(node.Value(d.source)))
		spans = emit(s)
		// a break inside emphasis or a link belongs to it
		switch {
		case node.HardLineBreak():
			s.Text = "\n"
			spans = emit(s)
		case node.SoftLineBreak():
			s.Text = " "
			spans = emit(s)
		}
		return spans
	case *ast.String:
		s := style
		s.Text = string(node.Value)
		return emit(s)
	case *ast.CodeSpan:
		var sb strings.Builder
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				v := string(t.Segment.Value(d.source))
				if strings.HasSuffix(v, "\n") {
					v = strings.TrimSuffix(v, "\n") + " "
				}
				sb.WriteString(v)
			}
		}
		s := style
		s.Code = true
		s.Text = sb.String()
		return emit(s)
	case *ast.Emphasis:
		s := style
		if node.Level >= 2 {
			s.Strong = true
		} else {
			s.Emphasis = true
		}
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			spans = d.inlineNode(spans, c, s, raw)
		}
		return spans
	case *ast.Link:
		s := style
		s.Href = unescapeMarkdown(string(node.Destination))
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			spans = d.inlineNode(spans, c, s, raw)
		}
		return spans
	case *ast.Image:
		s := style
		s.Href = unescapeMarkdown(string(node.Destination))
		var alt []types.Span
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			alt = d.inlineNode(alt, c, types.Span{}, &rawTags{})
		}
		s.Text = types.SpansText(alt)
		return emit(s)
	case *ast.AutoLink:
		s := style
		s.Href = string(node.URL(d.source))
		s.Text = string(node.Label(d.source))
		return emit(s)
	case *ast.RawHTML:
		var sb strings.Builder
		for i := 0; i < node.Segments.Len(); i++ {
			seg := node.Segments.At(i)
			sb.Write(seg.Value(d.source))
		}
		tag := sb.String()
		switch strings.ToLower(tag) {
		case "<strong>", "<b>":
			raw.strong++
		case "</strong>", "</b>":
			raw.strong = max(0, raw.strong-1)
		case "<em>", "<i>":
			raw.emphasis++
		case "</em>", "</i>":
			raw.emphasis = max(0, raw.emphasis-1)
		default:
			s := style
			s.Text = tag
			return emit(s)
		}
		return spans
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			spans = d.inlineNode(spans, c, style, raw)
		}
		return spans
	}
}

// appendSpan adds s, merging it into the previous span when the markup matches
func appendSpan(spans []types.Span, s types.Span) []types.Span {
	if s.Text == "" {
		return spans
	}
	if n := len(spans); n > 0 && spans[n-1].SameMarkup(s) {
		spans[n-1].Text += s.Text
		return spans
	}
	return append(spans, s)
}
