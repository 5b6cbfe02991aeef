package space

import (
	"cmp"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/joshuapare/swiper/internal/mem"
)

type largeObject struct {
	size uint64 // page aligned
	refs bool   // may contain references
}

// Large is the large object space. Each object occupies whole pages,
// allocated first-fit from a sorted list of free extents. Objects never
// move.
type Large struct {
	arena  *mem.Arena
	region mem.Region

	mu      sync.Mutex
	free    []mem.Region // sorted, coalesced
	objects map[mem.Address]largeObject
	used    uint64
}

// NewLarge returns an empty large object space over region, which must be
// page aligned.
func NewLarge(arena *mem.Arena, region mem.Region) *Large {
	l := &Large{
		arena:   arena,
		region:  region,
		objects: make(map[mem.Address]largeObject),
	}
	if !region.Empty() {
		l.free = []mem.Region{region}
	}
	return l
}

// Region returns the address range of the space.
func (l *Large) Region() mem.Region { return l.region }

// Contains reports whether addr lies in the space.
func (l *Large) Contains(addr mem.Address) bool { return l.region.Contains(addr) }

// Alloc reserves size bytes rounded up to whole pages. refs records
// whether the object may hold references. Fresh memory reads as zero.
func (l *Large) Alloc(size uint64, refs bool) (mem.Address, error) {
	if size == 0 {
		return mem.Null, ErrNeedSmall
	}
	size = mem.AlignPage(size)
	if size == 0 {
		return mem.Null, fmt.Errorf("%w: size overflows", ErrNoSpace)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i, ext := range l.free {
		if ext.Size() < size {
			continue
		}
		addr := ext.Start
		if ext.Size() == size {
			l.free = slices.Delete(l.free, i, i+1)
		} else {
			l.free[i].Start = addr.Add(size)
		}
		l.objects[addr] = largeObject{size: size, refs: refs}
		l.used += size
		return addr, nil
	}
	return mem.Null, fmt.Errorf("%w: %d bytes requested in large space (%d free)", ErrNoSpace, size, l.region.Size()-l.used)
}

// Free releases the object at addr and returns its pages to the operating
// system.
func (l *Large) Free(addr mem.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	obj, ok := l.objects[addr]
	if !ok {
		return fmt.Errorf("%w: %v is not a large object", ErrBadAddress, addr)
	}
	delete(l.objects, addr)
	l.used -= obj.size

	ext := mem.Region{Start: addr, End: addr.Add(obj.size)}
	if err := l.arena.Release(ext); err != nil {
		return fmt.Errorf("space: release large object %v: %w", addr, err)
	}
	l.insertFree(ext)
	return nil
}

func (l *Large) insertFree(ext mem.Region) {
	i, _ := slices.BinarySearchFunc(l.free, ext.Start, func(r mem.Region, a mem.Address) int {
		return cmp.Compare(r.Start, a)
	})
	l.free = slices.Insert(l.free, i, ext)

	// Merge with the successor, then with the predecessor.
	if i+1 < len(l.free) && l.free[i].End == l.free[i+1].Start {
		l.free[i].End = l.free[i+1].End
		l.free = slices.Delete(l.free, i+1, i+2)
	}
	if i > 0 && l.free[i-1].End == l.free[i].Start {
		l.free[i-1].End = l.free[i].End
		l.free = slices.Delete(l.free, i, i+1)
	}
}

// IsObject reports whether addr is the start of a live large object.
func (l *Large) IsObject(addr mem.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.objects[addr]
	return ok
}

// HasRefs reports whether the object at addr may hold references.
func (l *Large) HasRefs(addr mem.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.objects[addr].refs
}

// Objects yields every large object in address order with its page
// aligned size. It iterates over a snapshot, so the visitor may free the
// object it is given.
func (l *Large) Objects() iter.Seq2[mem.Address, uint64] {
	l.mu.Lock()
	addrs := slices.Sorted(maps.Keys(l.objects))
	sizes := make([]uint64, len(addrs))
	for i, a := range addrs {
		sizes[i] = l.objects[a].size
	}
	l.mu.Unlock()

	return func(yield func(mem.Address, uint64) bool) {
		for i, a := range addrs {
			if !yield(a, sizes[i]) {
				return
			}
		}
	}
}

// Len returns the number of live objects.
func (l *Large) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.objects)
}

// Used returns the bytes held by live objects.
func (l *Large) Used() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used
}

// FreeExtents returns a copy of the free extent list.
func (l *Large) FreeExtents() []mem.Region {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.free)
}
