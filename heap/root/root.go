// Package root models the root set the runtime hands to the collector.
//
// A root is a reference slot outside the collected heap: a stack frame
// slot, a register spill, a handle, or a global stored in permanent space.
// The collector marks through every root and rewrites each one to the
// final address of its referent.
package root

import (
	"sync"

	"github.com/joshuapare/swiper/internal/mem"
)

// Slot is a reference location the collector may read and rewrite.
type Slot struct {
	p *mem.Address
}

// At returns a slot for a runtime-owned location.
func At(p *mem.Address) Slot { return Slot{p: p} }

// InHeap returns a slot for the word at addr in arena memory, for globals
// kept in permanent space.
func InHeap(arena *mem.Arena, addr mem.Address) Slot { return Slot{p: arena.Ref(addr)} }

// Get returns the reference held by the slot.
func (s Slot) Get() mem.Address { return *s.p }

// Set stores v into the slot.
func (s Slot) Set(v mem.Address) { *s.p = v }

// Provider returns the current root set. It is called once per collection,
// after the mutator has stopped.
type Provider func() []Slot

// Set is an ordered collection of slots.
type Set struct {
	slots []Slot
}

// Add appends slots to the set.
func (s *Set) Add(slots ...Slot) { s.slots = append(s.slots, slots...) }

// Len returns the number of slots.
func (s *Set) Len() int { return len(s.slots) }

// Slots returns the slots in insertion order.
func (s *Set) Slots() []Slot { return s.slots }

// Provider returns a provider yielding the set.
func (s *Set) Provider() Provider { return s.Slots }

// Handles is a stack of handle scopes, the stand-in for a mutator's stack
// frames. Handles created in a scope stop being roots when the scope is
// popped.
type Handles struct {
	mu     sync.Mutex
	slots  []*mem.Address
	scopes []int
}

// NewHandles returns an empty handle stack.
func NewHandles() *Handles { return &Handles{} }

// Push opens a scope.
func (h *Handles) Push() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scopes = append(h.scopes, len(h.slots))
}

// Pop closes the innermost scope, dropping its handles. Popping with no
// open scope drops every handle.
func (h *Handles) Pop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	mark := 0
	if n := len(h.scopes); n > 0 {
		mark = h.scopes[n-1]
		h.scopes = h.scopes[:n-1]
	}
	clear(h.slots[mark:])
	h.slots = h.slots[:mark]
}

// New creates a handle holding v in the innermost scope.
func (h *Handles) New(v mem.Address) Slot {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := new(mem.Address)
	*p = v
	h.slots = append(h.slots, p)
	return At(p)
}

// Len returns the number of live handles.
func (h *Handles) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.slots)
}

// Slots returns every live handle as a root slot.
func (h *Handles) Slots() []Slot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Slot, len(h.slots))
	for i, p := range h.slots {
		out[i] = At(p)
	}
	return out
}
