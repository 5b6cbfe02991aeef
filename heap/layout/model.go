package layout

import (
	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/internal/mem"
)

// Model answers the two questions the collector asks about any object:
// how big is it, and where are its reference slots.
type Model struct {
	arena   *mem.Arena
	classes *Registry
}

// NewModel returns a model over arena using the descriptors in classes.
func NewModel(arena *mem.Arena, classes *Registry) *Model {
	return &Model{arena: arena, classes: classes}
}

// Arena returns the arena the model reads from.
func (m *Model) Arena() *mem.Arena { return m.arena }

// Classes returns the class registry.
func (m *Model) Classes() *Registry { return m.classes }

// ClassOf returns the class of the object at addr. The header must hold a
// plain class pointer or the failure sentinel.
func (m *Model) ClassOf(addr mem.Address) *Class {
	return m.ClassFor(addr, header.At(m.arena, addr).ClassPointer())
}

// ClassFor resolves cls, a class pointer taken from the header at addr.
func (m *Model) ClassFor(addr, cls mem.Address) *Class {
	c, err := m.classes.ClassAt(cls)
	if err != nil {
		header.Violation(addr, "ClassOf", "%v", err)
	}
	return c
}

// SizeOf returns the exact size of the object at addr.
func (m *Model) SizeOf(addr mem.Address) uint64 {
	return m.SizeFor(addr, m.ClassOf(addr))
}

// SizeFor returns the size of the object of class c at addr.
func (m *Model) SizeFor(addr mem.Address, c *Class) uint64 {
	if c.Kind == KindFixed {
		return c.Size
	}
	size, ok := ArraySize(c, m.length(addr))
	if !ok {
		header.Violation(addr, "SizeOf", "%s length %d overflows", c.Name, m.length(addr))
	}
	return size
}

// ForEachReferenceField calls visit with the address of every reference
// slot of the object at addr: each reference field of a fixed instance,
// each element of a reference array. Visitors may rewrite the slot.
func (m *Model) ForEachReferenceField(addr mem.Address, visit func(slot mem.Address)) {
	m.forEach(addr, m.ClassOf(addr), mem.Address(^uint64(0)), visit)
}

// ForEachReferenceFieldWithin is ForEachReferenceField restricted to
// reference array elements below limit. Fixed instances are always
// visited whole.
func (m *Model) ForEachReferenceFieldWithin(addr, limit mem.Address, visit func(slot mem.Address)) {
	m.forEach(addr, m.ClassOf(addr), limit, visit)
}

func (m *Model) forEach(addr mem.Address, c *Class, limit mem.Address, visit func(mem.Address)) {
	switch c.Kind {
	case KindObjArray:
		slot := addr + DataOffset
		end := min(slot.Add(m.length(addr)*mem.PtrSize), limit)
		for ; slot < end; slot += mem.PtrSize {
			visit(slot)
		}
	case KindFixed:
		for _, off := range c.RefFields {
			visit(addr.Add(off))
		}
	}
}

func (m *Model) length(addr mem.Address) uint64 {
	return m.arena.LoadWord(addr + LengthOffset)
}
