package mem

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArena(t *testing.T, size uint64) *Arena {
	t.Helper()
	a, err := Reserve(size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestReserve_GuardPage(t *testing.T) {
	a := newTestArena(t, 3*PageSize)

	r := a.Region()
	assert.Equal(t, Address(PageSize), r.Start, "usable region starts after the guard page")
	assert.Equal(t, uint64(4*PageSize), a.Size())
	assert.False(t, r.Contains(Null))
}

func TestReserve_RoundsUpToPages(t *testing.T) {
	a := newTestArena(t, 100)
	assert.Equal(t, uint64(2*PageSize), a.Size())
}

func TestReserve_Zero(t *testing.T) {
	_, err := Reserve(0)
	require.ErrorIs(t, err, ErrBadSize)
}

func TestArena_LoadStore(t *testing.T) {
	a := newTestArena(t, PageSize)
	addr := Address(PageSize + 16)

	assert.Equal(t, Null, a.Load(addr), "fresh memory reads as zero")

	a.Store(addr, 0x2040)
	assert.Equal(t, Address(0x2040), a.Load(addr))
	assert.Equal(t, uint64(0x2040), a.LoadWord(addr))
	assert.Equal(t, uint64(0x2040), *a.Word(addr))
}

func TestArena_WordAtomics(t *testing.T) {
	a := newTestArena(t, PageSize)
	w := a.Word(PageSize)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				atomic.AddUint64(w, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(8000), a.LoadWord(PageSize))
}

func TestArena_MisalignedPanics(t *testing.T) {
	a := newTestArena(t, PageSize)
	assert.Panics(t, func() { a.Load(PageSize + 3) })
}

func TestArena_OutOfBoundsPanics(t *testing.T) {
	a := newTestArena(t, PageSize)
	assert.Panics(t, func() { a.Load(Address(a.Size())) })
	assert.Panics(t, func() { a.Bytes(Address(a.Size())-4, 8) })
}

func TestArena_CopyOverlapping(t *testing.T) {
	a := newTestArena(t, PageSize)
	base := Address(PageSize)
	for i := range uint64(4) {
		a.StoreWord(base.Add(i*PtrSize), i+1)
	}

	// Slide the four words down by one word.
	a.Copy(base, base.Add(PtrSize), 3*PtrSize)

	assert.Equal(t, uint64(2), a.LoadWord(base))
	assert.Equal(t, uint64(3), a.LoadWord(base.Add(8)))
	assert.Equal(t, uint64(4), a.LoadWord(base.Add(16)))
}

func TestArena_ReleaseZeroes(t *testing.T) {
	a := newTestArena(t, 4*PageSize)
	r := Region{Start: PageSize + 8, End: 4*PageSize + 64}
	b := a.Bytes(r.Start, r.Size())
	for i := range b {
		b[i] = 0xAB
	}

	require.NoError(t, a.Release(r))

	for i, v := range a.Bytes(r.Start, r.Size()) {
		if v != 0 {
			t.Fatalf("byte %d not zero after release: 0x%X", i, v)
		}
	}
}

func TestAlign(t *testing.T) {
	tests := []struct {
		n, word, page uint64
	}{
		{1, 8, 4096},
		{8, 8, 4096},
		{9, 16, 4096},
		{4096, 4096, 4096},
		{4097, 4104, 8192},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.word, AlignWord(tt.n), "AlignWord(%d)", tt.n)
		assert.Equal(t, tt.page, AlignPage(tt.n), "AlignPage(%d)", tt.n)
	}
	assert.Equal(t, uint64(512), AlignUp(300, 512))
}

func TestRegion(t *testing.T) {
	r := Region{Start: 0x1000, End: 0x2000}
	assert.Equal(t, uint64(0x1000), r.Size())
	assert.True(t, r.Contains(0x1000))
	assert.False(t, r.Contains(0x2000))
	assert.True(t, r.Covers(0x1ff8, 8))
	assert.False(t, r.Covers(0x1ff8, 16))
	assert.False(t, r.Covers(0x1000, ^uint64(0)))
	assert.True(t, Region{}.Empty())
}

func TestOverflowSafe(t *testing.T) {
	_, ok := AddOverflowSafe(^uint64(0), 1)
	assert.False(t, ok)
	v, ok := MulOverflowSafe(1<<20, 8)
	assert.True(t, ok)
	assert.Equal(t, uint64(8<<20), v)
	_, ok = MulOverflowSafe(1<<40, 1<<40)
	assert.False(t, ok)
}
