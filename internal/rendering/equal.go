package rendering

import (
	"fmt"
	"strings"

	"github.com/jonathan/echo-pipeline/internal/types"
)

// Markers delimiting styled runs inside a block key
const (
	keyOpen  = "\x1e"
	keySep   = "\x1f"
	keyClose = "\x1d"
)

// Equal reports whether two documents are structurally equal.
// Whitespace-only differences and empty blocks are ignored; block order, heading levels,
// list kinds and order, inline markup and link targets are significant.
func Equal(a, b *types.Document) bool {
	al := Align(a, b)
	return len(al.OnlyA) == 0 && len(al.OnlyB) == 0
}

// BlocksEqual reports whether two blocks are structurally equal
func BlocksEqual(a, b types.Block) bool {
	return blockKey(a) == blockKey(b)
}

// Alignment is the longest common subsequence of two documents' non-empty blocks
type Alignment struct {
	LenA    int
	LenB    int
	Matches int
	// OnlyA and OnlyB hold original block indices that have no counterpart on the other side
	OnlyA []int
	OnlyB []int
}

// Ratio is matches divided by the longer side; two empty documents align perfectly
func (a Alignment) Ratio() float64 {
	longest := max(a.LenA, a.LenB)
	if longest == 0 {
		return 1
	}
	return float64(a.Matches) / float64(longest)
}

// Align computes the block alignment of a and b
func Align(a, b *types.Document) Alignment {
	ia, ka := keyedBlocks(a)
	ib, kb := keyedBlocks(b)

	// lcs[i][j] is the LCS length of ka[i:] and kb[j:]
	lcs := make([][]int, len(ka)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(kb)+1)
	}
	for i := len(ka) - 1; i >= 0; i-- {
		for j := len(kb) - 1; j >= 0; j-- {
			if ka[i] == kb[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	al := Alignment{LenA: len(ka), LenB: len(kb), Matches: lcs[0][0]}
	i, j := 0, 0
	for i < len(ka) && j < len(kb) {
		switch {
		case ka[i] == kb[j]:
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			al.OnlyA = append(al.OnlyA, ia[i])
			i++
		default:
			al.OnlyB = append(al.OnlyB, ib[j])
			j++
		}
	}
	for ; i < len(ka); i++ {
		al.OnlyA = append(al.OnlyA, ia[i])
	}
	for ; j < len(kb); j++ {
		al.OnlyB = append(al.OnlyB, ib[j])
	}
	return al
}

func keyedBlocks(doc *types.Document) ([]int, []string) {
	if doc == nil {
		return nil, nil
	}
	var idx []int
	var keys []string
	for i, b := range doc.Blocks {
		if isEmptyBlock(b) {
			continue
		}
		idx = append(idx, i)
		keys = append(keys, blockKey(b))
	}
	return idx, keys
}

func blockKey(b types.Block) string {
	switch b.Kind {
	case types.BlockHeading:
		return fmt.Sprintf("heading:%d:%s", b.Level, spansKey(b.Spans))
	case types.BlockList:
		items := make([]string, len(b.Items))
		for i, item := range b.Items {
			items[i] = spansKey(item)
		}
		return fmt.Sprintf("list:%t:%s", b.Ordered, strings.Join(items, "\n"))
	case types.BlockCode:
		code := strings.TrimRight(strings.ReplaceAll(b.Code, "\r\n", "\n"), "\n")
		return "code:" + strings.ToLower(strings.TrimSpace(b.Language)) + ":" + code
	default:
		return string(b.Kind) + ":" + spansKey(b.Spans)
	}
}

func spansKey(spans []types.Span) string {
	var sb strings.Builder
	for _, s := range normalizeSpans(spans) {
		if s.Plain() {
			sb.WriteString(s.Text)
			continue
		}
		flags := []byte("----")
		if s.Strong {
			flags[0] = 's'
		}
		if s.Emphasis {
			flags[1] = 'e'
		}
		if s.Code {
			flags[2] = 'c'
		}
		if s.Href != "" {
			flags[3] = 'a'
		}
		sb.WriteString(keyOpen + string(flags) + keySep + s.Href + keySep + collapseSpace(s.Text) + keyClose)
	}
	return collapseSpace(sb.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
