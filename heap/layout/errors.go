package layout

import "errors"

var (
	// ErrNoClass indicates an address that does not hold a class descriptor.
	ErrNoClass = errors.New("layout: not a class descriptor")

	// ErrDuplicateClass indicates a class name that is already defined.
	ErrDuplicateClass = errors.New("layout: class already defined")

	// ErrBadLayout indicates an invalid class definition.
	ErrBadLayout = errors.New("layout: invalid class layout")

	// ErrTooLarge indicates an object size that overflows the address space.
	ErrTooLarge = errors.New("layout: object too large")

	// ErrIndex indicates an element index outside an array.
	ErrIndex = errors.New("layout: index out of range")
)
