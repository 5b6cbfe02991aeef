package header

import (
	"sync/atomic"

	"github.com/joshuapare/swiper/internal/mem"
)

// Size is the byte size of the header prefix of every heap object.
const Size = 2 * mem.PtrSize

const (
	classOffset      = 0
	relocationOffset = mem.PtrSize
)

// maxForwardChain bounds how many forwards RepairClassPointer follows. An
// object is copied at most twice per cycle (evacuation, then compaction).
const maxForwardChain = 8

// Header is a view of the header of the object at a given address. It is
// cheap to construct and holds no state of its own.
type Header struct {
	Forwarding
	Marking
}

// At returns the header of the object at addr.
func At(a *mem.Arena, addr mem.Address) Header {
	return Header{
		Forwarding: Forwarding{arena: a, addr: addr, word: a.Word(addr + classOffset)},
		Marking:    Marking{addr: addr, word: a.Word(addr + relocationOffset)},
	}
}

// Init writes a fresh header for an object of class cls: plain class word,
// clear mark, no relocation.
func Init(a *mem.Arena, addr, cls mem.Address) Header {
	h := At(a, addr)
	h.SetClassPointer(cls)
	h.Reset()
	return h
}

// Address returns the object address.
func (h Header) Address() mem.Address { return h.Forwarding.addr }

// Forwarding is the class word capability of a header.
type Forwarding struct {
	arena *mem.Arena
	addr  mem.Address
	word  *uint64
}

// Word returns an atomic snapshot of the class word.
func (f Forwarding) Word() ClassWord {
	return ClassWord(atomic.LoadUint64(f.word))
}

// ClassPointer returns the class descriptor address. A header carrying the
// failure sentinel still names its class; a forwarded header does not.
func (f Forwarding) ClassPointer() mem.Address {
	w := ClassWord(*f.word)
	if w.State() == StateForwarded {
		Violation(f.addr, "ClassPointer", "object is forwarded to %v", w.Address())
	}
	return w.Address()
}

// SetClassPointer stores a plain class pointer.
func (f Forwarding) SetClassPointer(cls mem.Address) {
	*f.word = uint64(ClassPointer(cls))
}

// TryInstallForward atomically replaces the plain class word expected with
// a forward to dest. On success it returns (dest, true). Otherwise it
// returns the address already installed: the forward destination chosen
// by the winner, or the object's own address when the failure sentinel is
// present (the object stays where it is).
func (f Forwarding) TryInstallForward(expected, dest mem.Address) (mem.Address, bool) {
	old := ClassPointer(expected)
	if atomic.CompareAndSwapUint64(f.word, uint64(old), uint64(ForwardTo(dest))) {
		return dest, true
	}
	return f.lost("TryInstallForward", expected)
}

// MarkForwardFailed atomically records that evacuating the object failed.
// On success it returns (own address, true); otherwise it reports the
// installed outcome like TryInstallForward.
func (f Forwarding) MarkForwardFailed(expected mem.Address) (mem.Address, bool) {
	old := ClassPointer(expected)
	if atomic.CompareAndSwapUint64(f.word, uint64(old), uint64(ForwardFailed(expected))) {
		return f.addr, true
	}
	return f.lost("MarkForwardFailed", expected)
}

func (f Forwarding) lost(op string, expected mem.Address) (mem.Address, bool) {
	cur := f.Word()
	switch cur.State() {
	case StateForwarded:
		return cur.Address(), false
	case StateForwardFailed:
		if cur.Address() != expected {
			Violation(f.addr, op, "failure sentinel names class %v, expected %v", cur.Address(), expected)
		}
		return f.addr, false
	default:
		Violation(f.addr, op, "class word changed from %v to %v during collection", expected, cur.Address())
		return mem.Null, false
	}
}

// ForwardedAddress returns the forward destination, if any. Non-atomic.
func (f Forwarding) ForwardedAddress() (mem.Address, bool) {
	w := ClassWord(*f.word)
	if w.State() != StateForwarded {
		return mem.Null, false
	}
	return w.Address(), true
}

// RepairClassPointer rewrites the class word as a plain class pointer. A
// failure sentinel is untagged; a forward is followed (object to object)
// until a header naming the class is found. Plain words are left alone,
// so repeated calls are no-ops.
func (f Forwarding) RepairClassPointer() {
	w := ClassWord(*f.word)
	switch w.State() {
	case StateClass:
		return
	case StateForwardFailed:
		*f.word = uint64(ClassPointer(w.Address()))
	case StateForwarded:
		*f.word = uint64(ClassPointer(f.resolveClass(w.Address())))
	}
}

func (f Forwarding) resolveClass(dest mem.Address) mem.Address {
	for range maxForwardChain {
		if dest == f.addr {
			Violation(f.addr, "RepairClassPointer", "object forwards to itself")
		}
		w := ClassWord(*f.arena.Word(dest + classOffset))
		if w.State() != StateForwarded {
			return w.Address()
		}
		dest = w.Address()
	}
	Violation(f.addr, "RepairClassPointer", "forward chain longer than %d", maxForwardChain)
	return mem.Null
}

// Marking is the relocation word capability of a header.
type Marking struct {
	addr mem.Address
	word *uint64
}

const (
	markBit  = 1
	markMask = mem.PtrMask
)

// TryMark atomically sets the mark bit and reports whether this call set
// it. Among concurrent callers on one header exactly one gets true.
func (m Marking) TryMark() bool {
	return atomic.OrUint64(m.word, markBit)&markBit == 0
}

// Mark sets the mark bit. Non-atomic.
func (m Marking) Mark() { *m.word |= markBit }

// Unmark clears the mark bit, keeping the relocation address. Non-atomic.
func (m Marking) Unmark() { *m.word &^= markMask }

// IsMarked reports whether the mark bit is set. Non-atomic.
func (m Marking) IsMarked() bool { return *m.word&markMask != 0 }

// Relocation returns the relocation address, Null when none is set.
func (m Marking) Relocation() mem.Address { return mem.Address(*m.word &^ markMask) }

// SetRelocation stores addr as relocation address, keeping the mark bit.
func (m Marking) SetRelocation(addr mem.Address) {
	if !addr.IsAligned() {
		Violation(m.addr, "SetRelocation", "relocation address %v is not aligned", addr)
	}
	*m.word = uint64(addr) | (*m.word & markMask)
}

// Reset clears the mark bit and the relocation address.
func (m Marking) Reset() { *m.word = 0 }
