package card

import (
	"iter"

	"github.com/joshuapare/swiper/internal/mem"
)

const (
	// Shift is log2 of the card size.
	Shift = 9

	// Size is the number of bytes covered by one card.
	Size = 1 << Shift
)

const (
	clean byte = 0
	dirty byte = 1
)

// Range is a run of adjacent dirty cards as an address range.
type Range struct {
	Off mem.Address // Start of the first card
	Len uint64      // Bytes covered, a multiple of Size
}

// End returns the address just past the range.
func (r Range) End() mem.Address { return r.Off.Add(r.Len) }

// Table is the card table over one old generation region.
type Table struct {
	region mem.Region
	cards  []byte
}

// New returns a clean table covering region. The region start must be
// card aligned.
func New(region mem.Region) *Table {
	n := (region.Size() + Size - 1) >> Shift
	return &Table{region: region, cards: make([]byte, n)}
}

// Region returns the covered address range.
func (t *Table) Region() mem.Region { return t.region }

// Len returns the number of cards.
func (t *Table) Len() int { return len(t.cards) }

// IndexOf returns the card holding addr. addr must lie in the region.
func (t *Table) IndexOf(addr mem.Address) int {
	return int(addr.Sub(t.region.Start) >> Shift)
}

// CardStart returns the first address of card i.
func (t *Table) CardStart(i int) mem.Address {
	return t.region.Start.Add(uint64(i) << Shift)
}

// CardEnd returns the address just past card i, clipped to the region.
func (t *Table) CardEnd(i int) mem.Address {
	return min(t.CardStart(i+1), t.region.End)
}

// MarkDirty records a reference store into the slot at addr.
func (t *Table) MarkDirty(addr mem.Address) {
	if !t.region.Contains(addr) {
		return
	}
	t.cards[addr.Sub(t.region.Start)>>Shift] = dirty
}

// IsDirty reports whether card i is dirty.
func (t *Table) IsDirty(i int) bool { return t.cards[i] != clean }

// Clear marks card i clean.
func (t *Table) Clear(i int) { t.cards[i] = clean }

// ClearAll marks every card clean.
func (t *Table) ClearAll() { clear(t.cards) }

// DirtyCount returns the number of dirty cards.
func (t *Table) DirtyCount() int {
	n := 0
	for _, c := range t.cards {
		if c != clean {
			n++
		}
	}
	return n
}

// DirtyCards yields the index of every dirty card in ascending order. The
// sequence reads the table as it is iterated.
func (t *Table) DirtyCards() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i, c := range t.cards {
			if c != clean && !yield(i) {
				return
			}
		}
	}
}

// DirtyRanges returns the dirty cards merged into sorted, non-overlapping
// address ranges. Adjacent dirty cards form one range.
func (t *Table) DirtyRanges() []Range {
	var merged []Range
	for i := range t.DirtyCards() {
		start := t.CardStart(i)
		n := len(merged)
		if n > 0 && merged[n-1].End() == start {
			merged[n-1].Len += Size
			continue
		}
		merged = append(merged, Range{Off: start, Len: Size})
	}
	return merged
}
