package rendering

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/echo-pipeline/internal/types"
)

func docOf(blocks ...types.Block) *types.Document {
	return &types.Document{Blocks: blocks}
}

func TestEqual(t *testing.T) {
	base := docOf(
		types.Heading(1, "Title"),
		types.Paragraph(types.Span{Text: "Hello "}, types.Span{Text: "world", Href: "https://a.example"}),
		types.List(false, "a", "b"),
	)

	tests := []struct {
		name  string
		other *types.Document
		want  bool
	}{
		{name: "identical", other: base, want: true},
		{
			name: "whitespace differences",
			other: docOf(
				types.Heading(1, "  Title "),
				types.Paragraph(types.Span{Text: "Hello\n  "}, types.Span{Text: "world ", Href: "https://a.example"}),
				types.List(false, " a", "b\n"),
			),
			want: true,
		},
		{
			name: "empty blocks ignored",
			other: docOf(
				types.Paragraph(types.Span{Text: "  "}),
				types.Heading(1, "Title"),
				types.Paragraph(types.Span{Text: "Hello "}, types.Span{Text: "world", Href: "https://a.example"}),
				types.List(false),
				types.List(false, "a", "b"),
			),
			want: true,
		},
		{
			name: "split spans with same markup",
			other: docOf(
				types.Heading(1, "Title"),
				types.Paragraph(types.Span{Text: "Hel"}, types.Span{Text: "lo "}, types.Span{Text: "wor", Href: "https://a.example"}, types.Span{Text: "ld", Href: "https://a.example"}),
				types.List(false, "a", "b"),
			),
			want: true,
		},
		{
			name:  "heading level differs",
			other: docOf(types.Heading(2, "Title"), base.Blocks[1], base.Blocks[2]),
		},
		{
			name: "link target differs",
			other: docOf(
				types.Heading(1, "Title"),
				types.Paragraph(types.Span{Text: "Hello "}, types.Span{Text: "world", Href: "https://b.example"}),
				types.List(false, "a", "b"),
			),
		},
		{
			name:  "list kind differs",
			other: docOf(base.Blocks[0], base.Blocks[1], types.List(true, "a", "b")),
		},
		{
			name:  "list order differs",
			other: docOf(base.Blocks[0], base.Blocks[1], types.List(false, "b", "a")),
		},
		{
			name:  "block order differs",
			other: docOf(base.Blocks[1], base.Blocks[0], base.Blocks[2]),
		},
		{
			name: "emphasis differs",
			other: docOf(
				types.Heading(1, "Title"),
				types.Paragraph(types.Span{Text: "Hello ", Strong: true}, types.Span{Text: "world", Href: "https://a.example"}),
				types.List(false, "a", "b"),
			),
		},
		{
			name:  "quote is not a paragraph",
			other: docOf(base.Blocks[0], types.Block{Kind: types.BlockQuote, Spans: base.Blocks[1].Spans}, base.Blocks[2]),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(base, tt.other))
			assert.Equal(t, tt.want, Equal(tt.other, base))
		})
	}
}

func TestBlocksEqual_StyledWhitespaceMovesOutside(t *testing.T) {
	a := types.Paragraph(types.Span{Text: "a"}, types.Span{Text: " b ", Strong: true}, types.Span{Text: "c"})
	b := types.Paragraph(types.Span{Text: "a "}, types.Span{Text: "b", Strong: true}, types.Span{Text: " c"})
	assert.True(t, BlocksEqual(a, b))
}

func TestBlocksEqual_Code(t *testing.T) {
	a := types.Block{Kind: types.BlockCode, Language: "Go", Code: "x := 1\n"}
	b := types.Block{Kind: types.BlockCode, Language: "go", Code: "x := 1"}
	assert.True(t, BlocksEqual(a, b))

	c := types.Block{Kind: types.BlockCode, Language: "go", Code: "x  := 1"}
	assert.False(t, BlocksEqual(b, c))
}

func TestAlign(t *testing.T) {
	a := docOf(types.Heading(1, "T"), types.Paragraph(types.Span{Text: "p1"}), types.Paragraph(types.Span{Text: "p2"}))
	b := docOf(types.Heading(1, "T"), types.Paragraph(types.Span{Text: "p2"}), types.List(false, "x"))

	al := Align(a, b)
	assert.Equal(t, 2, al.Matches)
	assert.Equal(t, []int{1}, al.OnlyA)
	assert.Equal(t, []int{2}, al.OnlyB)
	assert.InDelta(t, 2.0/3.0, al.Ratio(), 1e-9)
}

func TestAlign_IndicesSkipEmptyBlocks(t *testing.T) {
	a := docOf(types.Paragraph(), types.Heading(1, "T"), types.Paragraph(types.Span{Text: "only here"}))
	b := docOf(types.Heading(1, "T"))

	al := Align(a, b)
	assert.Equal(t, 2, al.LenA)
	assert.Equal(t, []int{2}, al.OnlyA)
	assert.Empty(t, al.OnlyB)
	assert.InDelta(t, 0.5, al.Ratio(), 1e-9)
}

func TestAlign_EmptyDocuments(t *testing.T) {
	assert.Equal(t, 1.0, Align(docOf(), docOf()).Ratio())
	assert.Equal(t, 0.0, Align(docOf(types.Heading(1, "x")), docOf()).Ratio())
	assert.Equal(t, 1.0, Align(nil, docOf(types.Paragraph())).Ratio())
}
