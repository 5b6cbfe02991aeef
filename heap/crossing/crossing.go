// Package crossing implements the crossing map of the old generation: one
// byte per card telling a card scanner where the object covering the
// card's first byte starts.
//
// Entry encoding:
//
//	0..63    the first object of the card starts at word offset K
//	64..254  the card start lies inside an object that starts earlier;
//	         skip back b-63 cards (1..191) and look again
//	255      no object (beyond the allocation top)
//
// Objects spanning more than 191 cards chain: every covered card points at
// most 191 cards back, landing on a card that points further back, until a
// card holding the object start is reached.
package crossing

import (
	"fmt"

	"github.com/joshuapare/swiper/heap/card"
	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/internal/mem"
)

// Entry is one crossing map byte.
type Entry byte

const (
	// MaxOffset is the largest word offset a first-object entry can hold.
	MaxOffset = card.Size/mem.PtrSize - 1

	// MaxSkip is the longest backwards hop a single entry can encode.
	MaxSkip = 191

	skipBase Entry = MaxOffset

	// Empty marks a card that holds no object.
	Empty Entry = 255
)

// FirstObject returns the entry for a card whose first object starts at
// word offset words.
func FirstObject(words uint64) Entry {
	if words > MaxOffset {
		panic(fmt.Sprintf("crossing: word offset %d exceeds %d", words, MaxOffset))
	}
	return Entry(words)
}

// StartsEarlier returns the entry for a card whose start lies inside an
// object starting skip cards back.
func StartsEarlier(skip int) Entry {
	if skip < 1 || skip > MaxSkip {
		panic(fmt.Sprintf("crossing: skip %d out of range", skip))
	}
	return skipBase + Entry(skip)
}

// Offset returns the word offset of a first-object entry.
func (e Entry) Offset() (uint64, bool) {
	if e > skipBase {
		return 0, false
	}
	return uint64(e), true
}

// Skip returns the hop length of a starts-earlier entry.
func (e Entry) Skip() (int, bool) {
	if e <= skipBase || e == Empty {
		return 0, false
	}
	return int(e - skipBase), true
}

// IsEmpty reports whether the card holds no object.
func (e Entry) IsEmpty() bool { return e == Empty }

func (e Entry) String() string {
	if off, ok := e.Offset(); ok {
		return fmt.Sprintf("FirstObject(%d)", off)
	}
	if skip, ok := e.Skip(); ok {
		return fmt.Sprintf("StartsEarlier(%d)", skip)
	}
	return "Empty"
}

// SizeFunc returns the size of the object at an address.
type SizeFunc func(mem.Address) uint64

// Map is the crossing map over one old generation region.
type Map struct {
	region  mem.Region
	entries []Entry
	sizeOf  SizeFunc
}

// New returns an empty map covering region. sizeOf is used to walk
// forward from a known object start.
func New(region mem.Region, sizeOf SizeFunc) *Map {
	m := &Map{
		region:  region,
		entries: make([]Entry, (region.Size()+card.Size-1)>>card.Shift),
		sizeOf:  sizeOf,
	}
	m.Reset()
	return m
}

// Scratch returns an empty map with the same geometry, used to build the
// layout of a compacted generation before it is installed.
func (m *Map) Scratch() *Map { return New(m.region, m.sizeOf) }

// Len returns the number of cards.
func (m *Map) Len() int { return len(m.entries) }

// Entry returns the entry of card i.
func (m *Map) Entry(i int) Entry { return m.entries[i] }

// Reset marks every card empty.
func (m *Map) Reset() {
	for i := range m.entries {
		m.entries[i] = Empty
	}
}

// CopyFrom replaces every entry with the entries of other, which must
// cover the same region.
func (m *Map) CopyFrom(other *Map) {
	if other.region != m.region {
		panic(fmt.Sprintf("crossing: copy from %v into %v", other.region, m.region))
	}
	copy(m.entries, other.entries)
}

// RecordFirstObject sets card i to a first-object entry at word offset
// words.
func (m *Map) RecordFirstObject(i int, words uint64) {
	m.entries[i] = FirstObject(words)
}

// RecordObject records an object occupying [start, end). The start is
// recorded when it is the first object of its card; every card whose
// start lies strictly inside the object gets a starts-earlier entry.
// Objects must be recorded in address order.
func (m *Map) RecordObject(start, end mem.Address) {
	c := m.cardOf(start)
	if _, ok := m.entries[c].Offset(); !ok {
		m.entries[c] = FirstObject(start.Sub(m.cardStart(c)) / mem.PtrSize)
	}
	for i := c + 1; i < len(m.entries) && m.cardStart(i) < end; i++ {
		m.entries[i] = StartsEarlier(min(i-c, MaxSkip))
	}
}

// FindFirstObject returns the start of the object covering the first byte
// of card i, or the first object of the card when one starts exactly at
// the card start. It reports false for an empty card.
func (m *Map) FindFirstObject(i int) (mem.Address, bool) {
	target := m.cardStart(i)
	e := m.entries[i]
	switch {
	case e.IsEmpty():
		return mem.Null, false
	case e == 0:
		return target, true
	}

	if off, ok := e.Offset(); ok {
		if i == 0 || m.entries[i-1].IsEmpty() {
			return target.Add(off * mem.PtrSize), true
		}
		return m.walk(m.anchor(i-1, target), target), true
	}
	return m.walk(m.anchor(i, target), target), true
}

// anchor follows starts-earlier entries back from card i and returns the
// first object start of the card they lead to.
func (m *Map) anchor(i int, target mem.Address) mem.Address {
	for {
		e := m.entries[i]
		if off, ok := e.Offset(); ok {
			return m.cardStart(i).Add(off * mem.PtrSize)
		}
		skip, ok := e.Skip()
		if !ok || skip > i {
			header.Violation(target, "FindFirstObject", "crossing chain reached %v at card %d", e, i)
		}
		i -= skip
	}
}

func (m *Map) walk(addr, target mem.Address) mem.Address {
	for addr < target {
		size := m.sizeOf(addr)
		if size == 0 {
			header.Violation(addr, "FindFirstObject", "zero sized object")
		}
		if addr.Add(size) > target {
			return addr
		}
		addr = addr.Add(size)
	}
	return addr
}

func (m *Map) cardOf(addr mem.Address) int {
	return int(addr.Sub(m.region.Start) >> card.Shift)
}

func (m *Map) cardStart(i int) mem.Address {
	return m.region.Start.Add(uint64(i) << card.Shift)
}
