package extract

import (
	"sort"

	"github.com/standardbeagle/bladelsp/internal/types"
)

// lineIndex holds the byte offset at which each line starts.
type lineIndex []int

func newLineIndex(content []byte) lineIndex {
	idx := make(lineIndex, 1, len(content)/32+1)
	for i, b := range content {
		if b == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

// position converts a byte offset into a 0-based line and byte column.
func (li lineIndex) position(off int) types.Position {
	if off < 0 {
		off = 0
	}
	line := sort.Search(len(li), func(i int) bool { return li[i] > off }) - 1
	if line < 0 {
		line = 0
	}
	return types.Position{Line: uint32(line), Column: uint32(off - li[line])}
}

func (li lineIndex) fact(cat types.Category, text string, start, end int) types.PatternFact {
	return types.PatternFact{
		Category: cat,
		Text:     text,
		Start:    li.position(start),
		End:      li.position(end),
	}
}
