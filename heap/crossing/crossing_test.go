package crossing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/swiper/heap/card"
	"github.com/joshuapare/swiper/internal/mem"
)

const base = mem.Address(0x40000)

// testHeap lays objects out contiguously from base and remembers their
// sizes.
type testHeap struct {
	m     *Map
	sizes map[mem.Address]uint64
	top   mem.Address
}

func newTestHeap(cards int) *testHeap {
	h := &testHeap{sizes: make(map[mem.Address]uint64), top: base}
	h.m = New(mem.Region{Start: base, End: base.Add(uint64(cards) * card.Size)}, h.sizeOf)
	return h
}

func (h *testHeap) sizeOf(addr mem.Address) uint64 { return h.sizes[addr] }

func (h *testHeap) alloc(size uint64) mem.Address {
	addr := h.top
	h.sizes[addr] = size
	h.top = addr.Add(size)
	h.m.RecordObject(addr, h.top)
	return addr
}

// covering finds the answer FindFirstObject must give by linear search.
func (h *testHeap) covering(i int) mem.Address {
	target := base.Add(uint64(i) * card.Size)
	addr := base
	for addr < h.top {
		size := h.sizes[addr]
		if addr.Add(size) > target {
			return addr
		}
		addr = addr.Add(size)
	}
	return mem.Null
}

func TestEntry_Encoding(t *testing.T) {
	assert.Equal(t, Entry(0), FirstObject(0))
	assert.Equal(t, Entry(63), FirstObject(63))
	assert.Equal(t, Entry(64), StartsEarlier(1))
	assert.Equal(t, Entry(254), StartsEarlier(MaxSkip))

	off, ok := Entry(17).Offset()
	require.True(t, ok)
	assert.Equal(t, uint64(17), off)

	skip, ok := Entry(70).Skip()
	require.True(t, ok)
	assert.Equal(t, 7, skip)

	_, ok = Empty.Skip()
	assert.False(t, ok)
	_, ok = Empty.Offset()
	assert.False(t, ok)

	assert.Panics(t, func() { FirstObject(64) })
	assert.Panics(t, func() { StartsEarlier(0) })
	assert.Panics(t, func() { StartsEarlier(192) })
}

func TestMap_NewIsEmpty(t *testing.T) {
	h := newTestHeap(4)
	for i := range h.m.Len() {
		assert.True(t, h.m.Entry(i).IsEmpty())
		_, ok := h.m.FindFirstObject(i)
		assert.False(t, ok)
	}
}

func TestMap_SmallObjects(t *testing.T) {
	h := newTestHeap(4)
	for range 40 {
		h.alloc(48)
	}

	assert.Equal(t, FirstObject(0), h.m.Entry(0))
	// 512 / 48 = 10 rem 32: object 10 starts at 480, covers card 1 start.
	assert.Equal(t, FirstObject((528-512)/8), h.m.Entry(1))

	for i := range 4 {
		got, ok := h.m.FindFirstObject(i)
		require.True(t, ok, "card %d", i)
		assert.Equal(t, h.covering(i), got, "card %d", i)
	}
}

func TestMap_ObjectAtCardStart(t *testing.T) {
	h := newTestHeap(4)
	h.alloc(card.Size)
	b := h.alloc(64)

	assert.Equal(t, FirstObject(0), h.m.Entry(1))
	got, ok := h.m.FindFirstObject(1)
	require.True(t, ok)
	assert.Equal(t, b, got)
}

func TestMap_SpanningObject(t *testing.T) {
	h := newTestHeap(8)
	a := h.alloc(64)
	big := h.alloc(4*card.Size + 64)
	h.alloc(32)

	assert.Equal(t, FirstObject(0), h.m.Entry(0))
	for i := 1; i <= 3; i++ {
		assert.Equal(t, StartsEarlier(i), h.m.Entry(i), "card %d", i)
	}
	// big ends 128 bytes into card 4, where the next object starts.
	assert.Equal(t, FirstObject(16), h.m.Entry(4))
	assert.True(t, h.m.Entry(5).IsEmpty())

	for i := 1; i <= 4; i++ {
		got, ok := h.m.FindFirstObject(i)
		require.True(t, ok)
		assert.Equal(t, big, got, "card %d", i)
	}
	got, _ := h.m.FindFirstObject(0)
	assert.Equal(t, a, got)
}

func TestMap_ObjectEndingOnCardWithNextStart(t *testing.T) {
	h := newTestHeap(8)
	h.alloc(2*card.Size + 256)
	next := h.alloc(512)

	// Card 2 is covered by the first object and holds the start of next.
	assert.Equal(t, FirstObject(32), h.m.Entry(2))
	got, ok := h.m.FindFirstObject(2)
	require.True(t, ok)
	assert.Equal(t, base, got)

	assert.Equal(t, StartsEarlier(1), h.m.Entry(3))
	got, ok = h.m.FindFirstObject(3)
	require.True(t, ok)
	assert.Equal(t, next, got)
}

func TestMap_LongChain(t *testing.T) {
	const cards = 500
	h := newTestHeap(cards)
	h.alloc(32)
	big := h.alloc(uint64(cards-2) * card.Size)
	h.alloc(64)

	assert.Equal(t, StartsEarlier(MaxSkip), h.m.Entry(MaxSkip))
	assert.Equal(t, StartsEarlier(MaxSkip), h.m.Entry(MaxSkip+1))
	assert.Equal(t, StartsEarlier(MaxSkip), h.m.Entry(400))

	for _, i := range []int{1, 190, 191, 192, 383, 384, cards - 2} {
		got, ok := h.m.FindFirstObject(i)
		require.True(t, ok)
		assert.Equal(t, big, got, "card %d", i)
	}
	assert.Equal(t, FirstObject(4), h.m.Entry(cards-2))
	_, ok := h.m.FindFirstObject(cards - 1)
	assert.False(t, ok, "last card lies beyond the top")
}

func TestMap_FindAgreesWithLinearWalk(t *testing.T) {
	h := newTestHeap(64)
	sizes := []uint64{24, 40, 512, 1000, 24, 8 * card.Size, 56, 520, 24, 24, 3000}
	for h.top < base.Add(60*card.Size) {
		for _, s := range sizes {
			if h.top.Add(s) > base.Add(60*card.Size) {
				break
			}
			h.alloc(mem.AlignWord(s))
		}
		if h.top.Add(24) > base.Add(60*card.Size) {
			break
		}
		h.alloc(24)
	}

	for i := range h.m.Len() {
		want := h.covering(i)
		got, ok := h.m.FindFirstObject(i)
		if want.IsNull() {
			assert.False(t, ok, "card %d", i)
			continue
		}
		require.True(t, ok, "card %d", i)
		assert.Equal(t, want, got, "card %d", i)
	}
}

func TestMap_ScratchAndCopy(t *testing.T) {
	h := newTestHeap(4)
	h.alloc(2 * card.Size)

	s := h.m.Scratch()
	assert.True(t, s.Entry(0).IsEmpty())
	s.RecordObject(base, base+64)

	h.m.CopyFrom(s)
	assert.Equal(t, FirstObject(0), h.m.Entry(0))
	assert.True(t, h.m.Entry(1).IsEmpty())

	other := New(mem.Region{Start: base, End: base + card.Size}, nil)
	assert.Panics(t, func() { h.m.CopyFrom(other) })
}

func TestMap_BrokenChainIsViolation(t *testing.T) {
	h := newTestHeap(4)
	h.m.entries[2] = StartsEarlier(1)

	assert.Panics(t, func() { h.m.FindFirstObject(2) })
}
