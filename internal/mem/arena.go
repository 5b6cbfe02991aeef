package mem

import (
	"fmt"
	"unsafe"
)

// Arena is a contiguous, zero-initialised block of memory addressed by
// Address. Word accessors hand out *uint64 views so callers can use
// sync/atomic on header words; every address they accept must be
// pointer aligned.
//
// An Arena does not synchronise access. Concurrent users coordinate
// through atomics on individual words or through phase barriers.
type Arena struct {
	data  []byte
	unmap func([]byte) error
}

// Reserve maps an arena with room for size usable bytes. A guard page is
// added in front of the usable range, so the usable region starts at
// PageSize.
func Reserve(size uint64) (*Arena, error) {
	if size == 0 {
		return nil, ErrBadSize
	}
	total, ok := AddOverflowSafe(AlignPage(size), PageSize)
	if !ok || total > uint64(^uint(0)>>1) {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadSize, size)
	}
	data, unmap, err := mapAnon(int(total))
	if err != nil {
		return nil, fmt.Errorf("mem: reserve %d bytes: %w", total, err)
	}
	return &Arena{data: data, unmap: unmap}, nil
}

// Close unmaps the arena. The arena must not be used afterwards.
func (a *Arena) Close() error {
	if a.data == nil {
		return nil
	}
	data := a.data
	a.data = nil
	return a.unmap(data)
}

// Region returns the usable address range of the arena.
func (a *Arena) Region() Region {
	return Region{Start: PageSize, End: Address(len(a.data))}
}

// Size returns the size of the mapping including the guard page.
func (a *Arena) Size() uint64 { return uint64(len(a.data)) }

// Word returns a pointer to the word at addr.
func (a *Arena) Word(addr Address) *uint64 {
	a.checkWord(addr)
	return (*uint64)(unsafe.Pointer(&a.data[addr]))
}

// Ref returns a pointer to the reference slot at addr.
func (a *Arena) Ref(addr Address) *Address {
	a.checkWord(addr)
	return (*Address)(unsafe.Pointer(&a.data[addr]))
}

// Load reads the reference stored at addr.
func (a *Arena) Load(addr Address) Address { return *a.Ref(addr) }

// Store writes v into the slot at addr.
func (a *Arena) Store(addr Address, v Address) { *a.Ref(addr) = v }

// LoadWord reads the raw word at addr.
func (a *Arena) LoadWord(addr Address) uint64 { return *a.Word(addr) }

// StoreWord writes the raw word v at addr.
func (a *Arena) StoreWord(addr Address, v uint64) { *a.Word(addr) = v }

// Bytes returns the n bytes at addr. The slice aliases arena memory.
func (a *Arena) Bytes(addr Address, n uint64) []byte {
	if !a.has(addr, n) {
		panic(fmt.Errorf("%w: %d bytes at %v (arena %d bytes)", ErrOutOfBounds, n, addr, len(a.data)))
	}
	return a.data[addr : uint64(addr)+n : uint64(addr)+n]
}

// Copy copies n bytes from src to dst. Overlapping ranges are handled
// like memmove.
func (a *Arena) Copy(dst, src Address, n uint64) {
	if n == 0 {
		return
	}
	copy(a.Bytes(dst, n), a.Bytes(src, n))
}

// Clear zeroes n bytes at addr.
func (a *Arena) Clear(addr Address, n uint64) {
	if n == 0 {
		return
	}
	clear(a.Bytes(addr, n))
}

// Release hands the pages fully inside r back to the operating system and
// guarantees the whole of r reads as zero afterwards.
func (a *Arena) Release(r Region) error {
	if r.Empty() {
		return nil
	}
	start := Address(AlignPage(uint64(r.Start)))
	end := r.End &^ PageMask
	if start >= end {
		a.Clear(r.Start, r.Size())
		return nil
	}
	a.Clear(r.Start, start.Sub(r.Start))
	a.Clear(end, r.End.Sub(end))
	return releasePages(a.Bytes(start, end.Sub(start)))
}

func (a *Arena) has(addr Address, n uint64) bool {
	end, ok := AddOverflowSafe(uint64(addr), n)
	return ok && end <= uint64(len(a.data))
}

func (a *Arena) checkWord(addr Address) {
	if !addr.IsAligned() {
		panic(fmt.Errorf("%w at %v", ErrMisaligned, addr))
	}
	if !a.has(addr, PtrSize) {
		panic(fmt.Errorf("%w: word at %v (arena %d bytes)", ErrOutOfBounds, addr, len(a.data)))
	}
}
