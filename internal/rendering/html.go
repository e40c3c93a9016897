package rendering

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/echo-pipeline/internal/types"
)

var htmlShell = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<article>
{{.Body}}</article>
</body>
</html>
`))

type htmlPage struct {
	Title string
	Body  template.HTML
}

func encodeHTML(doc *types.Document) (string, error) {
	var body strings.Builder
	for _, b := range doc.Blocks {
		switch b.Kind {
		case types.BlockHeading:
			fmt.Fprintf(&body, "<h%d>%s</h%d>\n", b.Level, htmlInline(b.Spans), b.Level)
		case types.BlockParagraph:
			fmt.Fprintf(&body, "<p>%s</p>\n", htmlInline(b.Spans))
		case types.BlockQuote:
			fmt.Fprintf(&body, "<blockquote><p>%s</p></blockquote>\n", htmlInline(b.Spans))
		case types.BlockList:
			tag := "ul"
			if b.Ordered {
				tag = "ol"
			}
			body.WriteString("<" + tag + ">\n")
			for _, item := range b.Items {
				fmt.Fprintf(&body, "<li>%s</li>\n", htmlInline(item))
			}
			body.WriteString("</" + tag + ">\n")
		case types.BlockCode:
			class := ""
			if lang := strings.TrimSpace(b.Language); lang != "" {
				class = fmt.Sprintf(` class="language-%s"`, html.EscapeString(lang))
			}
			fmt.Fprintf(&body, "<pre><code%s>%s</code></pre>\n", class, html.EscapeString(b.Code))
		}
	}

	title := doc.Title()
	if title == "" {
		title = "Document"
	}

	var buf bytes.Buffer
	//nolint:gosec // body is assembled from escaped text above
	page := htmlPage{Title: title, Body: template.HTML(body.String())}
	if err := htmlShell.Execute(&buf, page); err != nil {
		return "", &CodecError{
			Format:  types.FormatHTML,
			Index:   -1,
			Message: "failed to render document",
			Cause:   &TemplateError{Message: "failed to execute template", Cause: err},
		}
	}
	return buf.String(), nil
}

// htmlInline wraps each span as a > strong > em > code
func htmlInline(spans []types.Span) string {
	var sb strings.Builder
	for _, s := range normalizeSpans(spans) {
		inner := html.EscapeString(s.Text)
		if s.Code {
			inner = "<code>" + inner + "</code>"
		}
		if s.Emphasis {
			inner = "<em>" + inner + "</em>"
		}
		if s.Strong {
			inner = "<strong>" + inner + "</strong>"
		}
		if s.Href != "" {
			inner = `<a href="` + html.EscapeString(s.Href) + `">` + inner + "</a>"
		}
		sb.WriteString(inner)
	}
	return sb.String()
}

var (
	htmlContainers = map[string]bool{
		"div": true, "section": true, "article": true, "main": true, "header": true,
		"footer": true, "aside": true, "nav": true, "figure": true, "body": true,
	}
	htmlSkipped = map[string]bool{
		"hr": true, "script": true, "style": true, "noscript": true, "template": true,
		"head": true, "title": true, "meta": true, "link": true, "#comment": true,
	}
	htmlUnsupported = map[string]bool{
		"table": true, "form": true, "dl": true, "iframe": true, "video": true,
		"audio": true, "canvas": true, "svg": true, "object": true, "select": true,
	}
	htmlBlockLevel = map[string]bool{
		"p": true, "div": true, "li": true, "ul": true, "ol": true, "blockquote": true,
		"pre": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"section": true, "article": true, "header": true, "footer": true, "figcaption": true,
	}
)

func decodeHTML(body string) (*types.Document, error) {
	page, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, &CodecError{Format: types.FormatHTML, Index: -1, Message: "failed to parse HTML", Cause: err}
	}

	doc := &types.Document{Origin: types.FormatHTML, Blocks: []types.Block{}}
	if err := htmlBlocks(doc, page.Find("body").First()); err != nil {
		return nil, err
	}
	return doc, nil
}

// htmlBlocks walks block-level children; stray inline content becomes a paragraph
func htmlBlocks(doc *types.Document, sel *goquery.Selection) error {
	var pending []types.Span
	flush := func() {
		if strings.TrimSpace(types.SpansText(pending)) != "" {
			doc.Blocks = append(doc.Blocks, types.Paragraph(pending...))
		}
		pending = nil
	}

	var walkErr error
	sel.Contents().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name := goquery.NodeName(s)
		switch {
		case htmlSkipped[name]:
		case htmlUnsupported[name]:
			flush()
			walkErr = &CodecError{Format: types.FormatHTML, BlockKind: types.BlockKind(name), Index: len(doc.Blocks), Message: "unsupported HTML element"}
			return false
		case htmlContainers[name]:
			flush()
			if err := htmlBlocks(doc, s); err != nil {
				walkErr = err
				return false
			}
		case len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6':
			flush()
			doc.Blocks = append(doc.Blocks, types.Block{
				Kind:  types.BlockHeading,
				Level: int(name[1] - '0'),
				Spans: htmlChildren(nil, s, types.Span{}),
			})
		case name == "p":
			flush()
			doc.Blocks = append(doc.Blocks, types.Paragraph(htmlChildren(nil, s, types.Span{})...))
		case name == "blockquote":
			flush()
			doc.Blocks = append(doc.Blocks, types.Block{Kind: types.BlockQuote, Spans: htmlChildren(nil, s, types.Span{})})
		case name == "ul" || name == "ol":
			flush()
			doc.Blocks = append(doc.Blocks, types.Block{Kind: types.BlockList, Ordered: name == "ol", Items: htmlListItems(s)})
		case name == "pre":
			flush()
			doc.Blocks = append(doc.Blocks, htmlCode(s))
		default:
			pending = htmlNode(pending, s, types.Span{})
		}
		return true
	})
	if walkErr != nil {
		return walkErr
	}
	flush()
	return nil
}

func htmlListItems(list *goquery.Selection) [][]types.Span {
	items := [][]types.Span{}
	list.Children().Each(func(_ int, li *goquery.Selection) {
		if goquery.NodeName(li) != "li" {
			return
		}
		var spans []types.Span
		var nested [][]types.Span
		li.Contents().Each(func(_ int, c *goquery.Selection) {
			if name := goquery.NodeName(c); name == "ul" || name == "ol" {
				nested = append(nested, htmlListItems(c)...)
				return
			}
			spans = htmlNode(spans, c, types.Span{})
		})
		if spans == nil {
			spans = []types.Span{}
		}
		items = append(items, spans)
		items = append(items, nested...)
	})
	return items
}

func htmlCode(pre *goquery.Selection) types.Block {
	b := types.Block{Kind: types.BlockCode, Code: strings.TrimSuffix(pre.Text(), "\n")}
	class, _ := pre.Find("code").First().Attr("class")
	for _, c := range strings.Fields(class) {
		if lang, ok := strings.CutPrefix(c, "language-"); ok {
			b.Language = lang
			break
		}
		if lang, ok := strings.CutPrefix(c, "lang-"); ok {
			b.Language = lang
			break
		}
	}
	return b
}

func htmlChildren(spans []types.Span, sel *goquery.Selection, style types.Span) []types.Span {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		spans = htmlNode(spans, c, style)
	})
	return spans
}

// htmlNode appends the inline content of one node; unknown elements are transparent
func htmlNode(spans []types.Span, s *goquery.Selection, style types.Span) []types.Span {
	name := goquery.NodeName(s)
	switch name {
	case "#text":
		st := style
		st.Text = s.Text()
		return appendSpan(spans, st)
	case "br":
		st := style
		st.Text = "\n"
		return appendSpan(spans, st)
	case "strong", "b":
		style.Strong = true
	case "em", "i":
		style.Emphasis = true
	case "code", "kbd", "samp", "tt":
		style.Code = true
	case "a":
		if href, ok := s.Attr("href"); ok && href != "" {
			style.Href = href
		}
	case "img":
		st := style
		st.Text = s.AttrOr("alt", "")
		if src := s.AttrOr("src", ""); src != "" {
			st.Href = src
		}
		return appendSpan(spans, st)
	default:
		if htmlSkipped[name] {
			return spans
		}
	}

	if htmlBlockLevel[name] {
		spans = appendSpan(spans, types.Span{Text: " "})
		spans = htmlChildren(spans, s, style)
		return appendSpan(spans, types.Span{Text: " "})
	}
	return htmlChildren(spans, s, style)
}
