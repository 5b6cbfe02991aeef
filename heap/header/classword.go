package header

import (
	"fmt"

	"github.com/joshuapare/swiper/internal/mem"
)

// State is the decoded state of a class word.
type State uint8

const (
	StateClass State = iota
	StateForwarded
	StateForwardFailed
)

func (s State) String() string {
	switch s {
	case StateClass:
		return "Class"
	case StateForwarded:
		return "Forwarded"
	case StateForwardFailed:
		return "ForwardFailed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

const (
	tagForwarded = 0b01
	tagFailed    = 0b11
	tagMask      = 0b11
)

// ClassWord is the tagged first header word.
type ClassWord uint64

// ClassPointer encodes a plain class descriptor address.
func ClassPointer(cls mem.Address) ClassWord {
	if !cls.IsAligned() || cls.IsNull() {
		Violation(cls, "ClassPointer", "class pointer must be non-null and aligned")
	}
	return ClassWord(cls)
}

// ForwardTo encodes a forward to dest.
func ForwardTo(dest mem.Address) ClassWord {
	if !dest.IsAligned() || dest.IsNull() {
		Violation(dest, "ForwardTo", "forward destination must be non-null and aligned")
	}
	return ClassWord(dest) | tagForwarded
}

// ForwardFailed encodes the failure sentinel for an object of class cls.
func ForwardFailed(cls mem.Address) ClassWord {
	return ClassPointer(cls) | tagFailed
}

// State decodes the tag bits.
func (w ClassWord) State() State {
	switch w & tagMask {
	case 0:
		return StateClass
	case tagForwarded:
		return StateForwarded
	case tagFailed:
		return StateForwardFailed
	}
	Violation(mem.Address(w), "State", "unknown class word tag %#b", uint64(w&tagMask))
	return 0
}

// Address returns the address part: the class descriptor for StateClass and
// StateForwardFailed, the destination for StateForwarded.
func (w ClassWord) Address() mem.Address { return mem.Address(w &^ tagMask) }

func (w ClassWord) String() string {
	return fmt.Sprintf("%s(%v)", w.State(), w.Address())
}
