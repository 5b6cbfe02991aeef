// Package mem provides the arena that backs the managed heap: address
// arithmetic, alignment helpers, word access and page management.
//
// Addresses are byte offsets into a single arena. The first page of every
// arena is a guard page that is never handed out, so Null (0) never names
// a valid object.
package mem

import "fmt"

// Address is a byte offset into an Arena.
type Address uint64

// Null is the null reference.
const Null Address = 0

const (
	// PtrSize is the width of a reference slot and of every header word.
	PtrSize = 8

	// PtrMask is the bitmask used for aligning to PtrSize (PtrSize - 1).
	PtrMask = PtrSize - 1

	// PageSize is the granularity of region boundaries and of large objects.
	PageSize = 0x1000

	// PageMask is the bitmask used for aligning to PageSize (PageSize - 1).
	PageMask = PageSize - 1
)

// Add returns a advanced by n bytes.
func (a Address) Add(n uint64) Address { return a + Address(n) }

// Sub returns the byte distance from b to a. Callers guarantee a >= b.
func (a Address) Sub(b Address) uint64 { return uint64(a - b) }

// IsNull reports whether a is the null reference.
func (a Address) IsNull() bool { return a == Null }

// IsAligned reports whether a is aligned to the pointer width.
func (a Address) IsAligned() bool { return a&PtrMask == 0 }

func (a Address) String() string { return fmt.Sprintf("0x%x", uint64(a)) }

// Region is the half-open address range [Start, End).
type Region struct {
	Start Address
	End   Address
}

// Size returns the number of bytes covered by r.
func (r Region) Size() uint64 { return r.End.Sub(r.Start) }

// Contains reports whether a lies inside r.
func (r Region) Contains(a Address) bool { return a >= r.Start && a < r.End }

// Covers reports whether [a, a+n) lies entirely inside r.
func (r Region) Covers(a Address, n uint64) bool {
	end, ok := AddOverflowSafe(uint64(a), n)
	return a >= r.Start && ok && end <= uint64(r.End)
}

// Empty reports whether r covers no bytes.
func (r Region) Empty() bool { return r.End <= r.Start }

func (r Region) String() string { return fmt.Sprintf("[%v, %v)", r.Start, r.End) }
