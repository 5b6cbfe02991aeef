package space

import (
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/internal/mem"
)

// Bump is a bump pointer allocator over one region. Allocation is a single
// compare-and-swap on the top, so concurrent callers are safe.
type Bump struct {
	region mem.Region
	top    atomic.Uint64
}

// NewBump returns an empty allocator over region.
func NewBump(region mem.Region) *Bump {
	b := &Bump{region: region}
	b.top.Store(uint64(region.Start))
	return b
}

// Alloc reserves size bytes, rounded up to the pointer width. Fresh memory
// reads as zero.
func (b *Bump) Alloc(size uint64) (mem.Address, error) {
	if size == 0 {
		return mem.Null, ErrNeedSmall
	}
	size = mem.AlignWord(size)
	for {
		top := b.top.Load()
		end, ok := mem.AddOverflowSafe(top, size)
		if !ok || end > uint64(b.region.End) {
			return mem.Null, fmt.Errorf("%w: %d bytes requested, %d free", ErrNoSpace, size, uint64(b.region.End)-top)
		}
		if b.top.CompareAndSwap(top, end) {
			return mem.Address(top), nil
		}
	}
}

// Region returns the address range of the space.
func (b *Bump) Region() mem.Region { return b.region }

// Contains reports whether addr lies in the space.
func (b *Bump) Contains(addr mem.Address) bool { return b.region.Contains(addr) }

// Top returns the allocation top.
func (b *Bump) Top() mem.Address { return mem.Address(b.top.Load()) }

// Allocated returns the range from the region start to the top.
func (b *Bump) Allocated() mem.Region { return mem.Region{Start: b.region.Start, End: b.Top()} }

// Used returns the number of allocated bytes.
func (b *Bump) Used() uint64 { return b.Top().Sub(b.region.Start) }

// Free returns the number of bytes left above the top.
func (b *Bump) Free() uint64 { return b.region.End.Sub(b.Top()) }

// Reset moves the top back to the region start. Memory is not cleared.
func (b *Bump) Reset() { b.top.Store(uint64(b.region.Start)) }

func (b *Bump) setTop(top mem.Address) {
	if top < b.region.Start || top > b.region.End || !top.IsAligned() {
		panic(fmt.Errorf("%w: top %v outside %v", ErrBadAddress, top, b.region))
	}
	b.top.Store(uint64(top))
}

// Objects yields every object between the region start and the top with
// its size. The size is taken before the object is yielded, so the
// visitor may overwrite the object.
func (b *Bump) Objects(sizeOf func(mem.Address) uint64) iter.Seq2[mem.Address, uint64] {
	return func(yield func(mem.Address, uint64) bool) {
		top := b.Top()
		for addr := b.region.Start; addr < top; {
			size := sizeOf(addr)
			if size == 0 || addr.Add(size) > top {
				header.Violation(addr, "Objects", "object of %d bytes crosses top %v", size, top)
			}
			if !yield(addr, size) {
				return
			}
			addr = addr.Add(size)
		}
	}
}
