package space

import (
	"github.com/joshuapare/swiper/internal/mem"
)

// Young is the nursery. Objects are only ever allocated here and copied
// out; the space is never swept.
type Young struct {
	*Bump
	arena *mem.Arena
}

// NewYoung returns an empty young space over region.
func NewYoung(arena *mem.Arena, region mem.Region) *Young {
	return &Young{Bump: NewBump(region), arena: arena}
}

// Reset empties the space and returns its used pages to the operating
// system. The space reads as zero afterwards.
func (y *Young) Reset() error {
	used := y.Allocated()
	y.Bump.Reset()
	return y.arena.Release(used)
}
