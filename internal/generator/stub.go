package generator

import (
	"context"
	"strings"
	"time"

	"github.com/jonathan/echo-pipeline/internal/rendering"
	"github.com/jonathan/echo-pipeline/internal/types"
)

// ProviderStub is the configured name of the built-in deterministic provider
const ProviderStub = "stub"

// wordsPerParagraph bounds the filler paragraphs the stub writes
const wordsPerParagraph = 60

var stubSentences = []string{
	"Each stage takes a well defined input and hands a well defined output to the next one.",
	"Small, repeatable steps make failures easy to spot and cheap to fix.",
	"Teams usually start with a narrow scope and widen it once the basics are stable.",
	"Measurements taken early give a baseline that later changes can be compared against.",
	"Clear naming and consistent structure help readers find what they need quickly.",
	"Automated checks catch regressions long before they reach an audience.",
}

// Stub is a deterministic provider: the same request always yields the same body.
// The body mentions the topic, matches the requested length target in words
// and is encoded in the requested format.
type Stub struct {
	// Delay simulates provider latency; the call honours context cancellation while waiting
	Delay time.Duration
}

// NewStub returns a stub provider without latency
func NewStub() *Stub {
	return &Stub{}
}

// Generate builds the document for req and encodes it
func (s *Stub) Generate(ctx context.Context, req types.GenerationRequest) (string, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return rendering.Encode(StubDocument(req), req.Format)
}

// StubDocument is the document the stub encodes for a request
func StubDocument(req types.GenerationRequest) *types.Document {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = "Untitled"
	}

	doc := &types.Document{
		Origin: req.Format,
		Blocks: []types.Block{
			types.Heading(1, topic),
			types.Paragraph(
				types.Span{Text: "This article introduces "},
				types.Span{Text: topic, Strong: true},
				types.Span{Text: " and explains how it works in practice."},
			),
			types.Heading(2, "Key points"),
			types.List(false,
				"Understand the goals of "+topic,
				"Apply "+topic+" step by step",
				"Measure the results",
			),
			types.Heading(2, "Details"),
		},
	}

	remaining := req.LengthTarget - doc.WordCount()
	var words []string
	for i := 0; remaining > 0; i++ {
		for _, w := range strings.Fields(stubSentences[i%len(stubSentences)]) {
			if remaining == 0 {
				break
			}
			words = append(words, w)
			remaining--
		}
	}
	for len(words) > 0 {
		n := min(wordsPerParagraph, len(words))
		doc.Blocks = append(doc.Blocks, types.Paragraph(types.Span{Text: strings.Join(words[:n], " ")}))
		words = words[n:]
	}
	return doc
}
