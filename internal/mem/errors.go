package mem

import "errors"

var (
	// ErrOutOfBounds indicates an access outside the arena.
	ErrOutOfBounds = errors.New("mem: access out of bounds")

	// ErrMisaligned indicates a word access at an address that is not pointer aligned.
	ErrMisaligned = errors.New("mem: misaligned word access")

	// ErrBadSize indicates an arena or region size that is zero or too large to map.
	ErrBadSize = errors.New("mem: bad arena size")
)
