package rendering

import (
	"encoding/json"

	"github.com/jonathan/echo-pipeline/internal/schemas"
	"github.com/jonathan/echo-pipeline/internal/types"
	schemafiles "github.com/jonathan/echo-pipeline/schemas"
)

const schemaOrgContext = "https://schema.org"

type jsonldArticle struct {
	Context  string       `json:"@context"`
	Type     string       `json:"@type"`
	Headline string       `json:"headline,omitempty"`
	HasPart  []jsonldPart `json:"hasPart"`
}

type jsonldPart struct {
	Type     string          `json:"@type"`
	Position int             `json:"position"`
	Kind     types.BlockKind `json:"kind"`
	Level    int             `json:"level,omitempty"`
	Ordered  bool            `json:"ordered,omitempty"`
	Text     string          `json:"text,omitempty"`
	Spans    []types.Span    `json:"spans,omitempty"`
	Items    *[][]types.Span `json:"items,omitempty"`
}

// JSONLDType maps the format a document was generated in to its schema.org type
func JSONLDType(origin types.Format) string {
	switch origin {
	case types.FormatMarkdown:
		return "TechArticle"
	case types.FormatHTML:
		return "WebPage"
	default:
		return "Article"
	}
}

func originFromType(t string) types.Format {
	switch t {
	case "TechArticle":
		return types.FormatMarkdown
	case "WebPage":
		return types.FormatHTML
	default:
		return types.FormatJSONLD
	}
}

func encodeJSONLD(doc *types.Document) (string, error) {
	article := jsonldArticle{
		Context:  schemaOrgContext,
		Type:     JSONLDType(doc.Origin),
		Headline: doc.Title(),
		HasPart:  make([]jsonldPart, 0, len(doc.Blocks)),
	}

	for i, b := range doc.Blocks {
		part := jsonldPart{
			Type:     "WebPageElement",
			Position: i + 1,
			Kind:     b.Kind,
			Text:     b.Text(),
		}
		switch b.Kind {
		case types.BlockHeading:
			part.Level = b.Level
			part.Spans = normalizeSpans(b.Spans)
		case types.BlockList:
			part.Ordered = b.Ordered
			items := make([][]types.Span, len(b.Items))
			for n, item := range b.Items {
				items[n] = normalizeSpans(item)
			}
			part.Items = &items
		default:
			part.Spans = normalizeSpans(b.Spans)
		}
		article.HasPart = append(article.HasPart, part)
	}

	data, err := json.MarshalIndent(article, "", "  ")
	if err != nil {
		return "", &CodecError{Format: types.FormatJSONLD, Index: -1, Message: "failed to marshal document", Cause: err}
	}
	return string(data) + "\n", nil
}

func decodeJSONLD(body string) (*types.Document, error) {
	if err := schemas.Validate(schemafiles.JSONLDArticle, []byte(body)); err != nil {
		return nil, &CodecError{Format: types.FormatJSONLD, Index: -1, Message: "body does not match the article schema", Cause: err}
	}

	var article jsonldArticle
	if err := json.Unmarshal([]byte(body), &article); err != nil {
		return nil, &CodecError{Format: types.FormatJSONLD, Index: -1, Message: "failed to unmarshal document", Cause: err}
	}

	doc := &types.Document{Origin: originFromType(article.Type), Blocks: make([]types.Block, 0, len(article.HasPart))}
	for _, part := range article.HasPart {
		spans := part.Spans
		if len(spans) == 0 && part.Text != "" {
			spans = []types.Span{{Text: part.Text}}
		}
		b := types.Block{Kind: part.Kind}
		switch part.Kind {
		case types.BlockHeading:
			b.Level = part.Level
			b.Spans = spans
		case types.BlockList:
			b.Ordered = part.Ordered
			b.Items = [][]types.Span{}
			if part.Items != nil {
				b.Items = *part.Items
			}
		default:
			b.Spans = spans
		}
		doc.Blocks = append(doc.Blocks, b)
	}
	return doc, nil
}
