// Package layout describes how heap objects are shaped: class
// descriptors, object sizes and the locations of reference slots.
//
// Every object starts with a header (see package header). Arrays and
// strings follow it with a length word:
//
//	fixed instance   [header][fields ...]                    size from class
//	array            [header][length][elements ...]          16+8+len*elem
//	string           [header][length][bytes ...]             16+8+len
//
// Sizes are always rounded up to the pointer width and never smaller than
// MinObjectSize, so any hole left in a space can be covered by a filler.
package layout

import (
	"fmt"

	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/internal/mem"
)

// Kind is the size policy of a class.
type Kind uint8

const (
	KindFixed     Kind = iota + 1 // fixed-size instance
	KindObjArray                  // array of references
	KindFreeArray                 // slot-sized filler array, never traced
	KindArray                     // array of primitives
	KindStr                       // immutable byte string
)

func (k Kind) String() string {
	switch k {
	case KindFixed:
		return "Fixed"
	case KindObjArray:
		return "ObjArray"
	case KindFreeArray:
		return "FreeArray"
	case KindArray:
		return "Array"
	case KindStr:
		return "Str"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

const (
	// LengthOffset is the offset of the length word of arrays and strings.
	LengthOffset = header.Size

	// DataOffset is the offset of the first element of arrays and strings.
	DataOffset = header.Size + mem.PtrSize

	// MinObjectSize is the smallest size any object occupies.
	MinObjectSize = DataOffset
)

// Class describes one class of heap objects. Classes are immutable once
// defined.
type Class struct {
	ID        uint32
	Name      string
	Kind      Kind
	Size      uint64      // instance size including header (KindFixed)
	ElemSize  uint64      // element width in bytes (KindArray)
	RefFields []uint64    // byte offsets of reference fields (KindFixed)
	Addr      mem.Address // descriptor address in permanent space
}

// IsArray reports whether objects of c carry a length word.
func (c *Class) IsArray() bool {
	return c.Kind == KindObjArray || c.Kind == KindFreeArray || c.Kind == KindArray || c.Kind == KindStr
}

// HasRefs reports whether objects of c may hold references.
func (c *Class) HasRefs() bool {
	return c.Kind == KindObjArray || (c.Kind == KindFixed && len(c.RefFields) > 0)
}

// elemSize returns the element width for array-shaped classes.
func (c *Class) elemSize() uint64 {
	switch c.Kind {
	case KindObjArray, KindFreeArray:
		return mem.PtrSize
	case KindArray:
		return c.ElemSize
	case KindStr:
		return 1
	default:
		return 0
	}
}

// InstanceSize returns the allocation size of a fixed instance of c.
func InstanceSize(c *Class) uint64 { return c.Size }

// ArraySize returns the allocation size of an array or string of c with n
// elements. ok is false when the size overflows.
func ArraySize(c *Class, n uint64) (uint64, bool) {
	payload, ok := mem.MulOverflowSafe(n, c.elemSize())
	if !ok {
		return 0, false
	}
	size, ok := mem.AddOverflowSafe(DataOffset, payload)
	if !ok || size > ^uint64(0)-mem.PtrMask {
		return 0, false
	}
	return AlignObject(size), true
}

// AlignObject rounds a requested size to a valid object size.
func AlignObject(size uint64) uint64 {
	return max(mem.AlignWord(size), MinObjectSize)
}

func (c *Class) String() string { return fmt.Sprintf("%s#%d", c.Name, c.ID) }
