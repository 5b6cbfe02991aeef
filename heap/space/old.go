package space

import (
	"fmt"
	"sync"

	"github.com/joshuapare/swiper/heap/crossing"
	"github.com/joshuapare/swiper/heap/layout"
	"github.com/joshuapare/swiper/internal/mem"
)

// Old is the tenured generation. Every allocation is recorded in the
// crossing map so card scanning can find object starts.
//
// Alloc, Fill and SetTop must be called with the lock held.
type Old struct {
	*Bump
	arena    *mem.Arena
	crossing *crossing.Map
	filler   *layout.Class

	mu sync.Mutex
}

// NewOld returns an empty old generation over region. filler is the class
// used to plug holes.
func NewOld(arena *mem.Arena, region mem.Region, cm *crossing.Map, filler *layout.Class) *Old {
	return &Old{Bump: NewBump(region), arena: arena, crossing: cm, filler: filler}
}

// Lock takes the old generation metadata lock.
func (o *Old) Lock() { o.mu.Lock() }

// Unlock releases the old generation metadata lock.
func (o *Old) Unlock() { o.mu.Unlock() }

// Crossing returns the crossing map of the space.
func (o *Old) Crossing() *crossing.Map { return o.crossing }

// Alloc reserves size bytes and records the object in the crossing map.
func (o *Old) Alloc(size uint64) (mem.Address, error) {
	if size > 0 && size < layout.MinObjectSize {
		size = layout.MinObjectSize
	}
	addr, err := o.Bump.Alloc(size)
	if err != nil {
		return mem.Null, err
	}
	o.crossing.RecordObject(addr, addr.Add(mem.AlignWord(size)))
	return addr, nil
}

// Fill overwrites [addr, addr+size) with a filler array so the space stays
// walkable.
func (o *Old) Fill(addr mem.Address, size uint64) {
	if size < layout.MinObjectSize || size%mem.PtrSize != 0 {
		panic(fmt.Errorf("%w: filler of %d bytes at %v", ErrBadAddress, size, addr))
	}
	o.arena.Clear(addr, size)
	layout.InitArray(o.arena, addr, o.filler, (size-layout.DataOffset)/mem.PtrSize)
}

// SetTop moves the top to top after compaction and zeroes the bytes
// between the new and the old top.
func (o *Old) SetTop(top mem.Address) {
	old := o.Top()
	o.setTop(top)
	if top < old {
		o.arena.Clear(top, old.Sub(top))
	}
}
