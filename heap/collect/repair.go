package collect

import (
	"fmt"

	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/internal/mem"
	"github.com/joshuapare/swiper/internal/parallel"
)

func (cy *cycle) repair() error {
	if err := cy.repairSlots(); err != nil {
		return err
	}
	cy.slide()
	cy.placeRetried()

	for _, addr := range cy.large {
		header.At(cy.s.Arena, addr).Reset()
	}
	cy.s.Old.SetTop(cy.newTop)
	cy.s.Old.Crossing().CopyFrom(cy.scratch)
	if err := cy.s.Young.Reset(); err != nil {
		return fmt.Errorf("collect: reset young generation: %w", err)
	}
	cy.cleanCards()
	return nil
}

// repairSlots rewrites every root and every reference slot of every
// survivor to the final address of its referent. Objects have not moved
// yet, so slots are visited at their current addresses.
func (cy *cycle) repairSlots() error {
	arena, model := cy.s.Arena, cy.s.Model

	for _, r := range cy.roots {
		r.Set(cy.resolve(r.Get()))
	}

	fix := func(slot mem.Address) {
		arena.Store(slot, cy.resolve(arena.Load(slot)))
	}

	objects := make([]mem.Address, 0, len(cy.survivors)+len(cy.large)+len(cy.retried))
	for _, m := range cy.survivors {
		objects = append(objects, m.src)
	}
	for _, addr := range cy.large {
		if !cy.s.Large.HasRefs(addr) {
			continue
		}
		objects = append(objects, addr)
	}
	for _, m := range cy.retried {
		if m.refs {
			objects = append(objects, m.src)
		}
	}

	err := parallel.For(cy.ctx, len(objects), cy.opts.Workers, func(i int) error {
		model.ForEachReferenceField(objects[i], fix)
		return nil
	})
	if err != nil {
		return fmt.Errorf("collect: repair slots: %w", err)
	}
	return nil
}

// resolve returns where the object referenced by v lives after the cycle.
func (cy *cycle) resolve(v mem.Address) mem.Address {
	arena := cy.s.Arena
	switch {
	case v.IsNull():
		return v
	case cy.s.Young.Contains(v):
		h := header.At(arena, v)
		w := h.Word()
		switch w.State() {
		case header.StateForwarded:
			return cy.resolve(w.Address())
		case header.StateClass:
			if h.IsMarked() && !h.Relocation().IsNull() {
				return h.Relocation()
			}
		}
		header.Violation(v, "Repair", "live reference to young object in state %v that was neither evacuated nor retried", w.State())
	case cy.s.Old.Contains(v):
		h := header.At(arena, v)
		if !h.IsMarked() {
			header.Violation(v, "Repair", "live reference to unmarked old object")
		}
		return h.Relocation()
	}
	return v
}

// slide moves old survivors down to their relocation addresses. Survivors
// are visited in ascending order and never move up, so a move only
// overwrites memory already vacated.
func (cy *cycle) slide() {
	arena := cy.s.Arena
	for _, m := range cy.survivors {
		arena.Copy(m.dest, m.src, m.size)
		h := header.At(arena, m.dest)
		h.RepairClassPointer()
		h.Reset()
	}
}

func (cy *cycle) placeRetried() {
	arena := cy.s.Arena
	for _, m := range cy.retried {
		arena.Copy(m.dest, m.src, m.size)
		h := header.At(arena, m.dest)
		h.RepairClassPointer()
		h.Reset()
	}
}

// cleanCards scans every dirty card of the compacted old generation and
// clears the ones without a slot referencing the young generation.
func (cy *cycle) cleanCards() {
	arena, model, old := cy.s.Arena, cy.s.Model, cy.s.Old
	cards, cm, young := cy.s.Cards, old.Crossing(), cy.s.Young
	top := old.Top()

	for i := range cards.DirtyCards() {
		start, end := cards.CardStart(i), cards.CardEnd(i)
		obj, ok := cm.FindFirstObject(i)
		keep := false
		for ok && obj < end && obj < top {
			model.ForEachReferenceFieldWithin(obj, end, func(slot mem.Address) {
				if slot >= start && young.Contains(arena.Load(slot)) {
					keep = true
				}
			})
			obj = obj.Add(model.SizeOf(obj))
		}
		if !keep {
			cards.Clear(i)
		}
	}
}
