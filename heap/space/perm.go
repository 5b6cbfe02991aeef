package space

import "github.com/joshuapare/swiper/internal/mem"

// Perm is the permanent space. It is never collected; objects in it may
// only reference other permanent objects.
type Perm struct {
	*Bump
}

// NewPerm returns an empty permanent space over region.
func NewPerm(region mem.Region) *Perm {
	return &Perm{Bump: NewBump(region)}
}
