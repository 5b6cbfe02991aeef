// Package verify provides validation functions for heap structures.
// These helpers are used in tests, by the heap in verify mode and by the
// gcctl tool to ensure heap invariants hold between collection cycles.
package verify

import (
	"fmt"
	"iter"

	"github.com/joshuapare/swiper/heap/card"
	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/heap/layout"
	"github.com/joshuapare/swiper/heap/space"
	"github.com/joshuapare/swiper/internal/mem"
)

// Heap is the view of a heap the checks need.
type Heap interface {
	Arena() *mem.Arena
	Model() *layout.Model
	Young() *space.Young
	Old() *space.Old
	Large() *space.Large
	Perm() *space.Perm
	Cards() *card.Table
}

// ValidationError reports a violated heap invariant.
type ValidationError struct {
	Type    string
	Message string
	Addr    mem.Address // Null when the failure has no single address
	Details map[string]any
}

func (e *ValidationError) Error() string {
	if !e.Addr.IsNull() {
		return fmt.Sprintf("%s at %v: %s", e.Type, e.Addr, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// AllInvariants validates every heap invariant that holds between cycles.
// Returns the first error encountered, or nil if all checks pass.
func AllInvariants(h Heap) error {
	if err := Headers(h); err != nil {
		return err
	}
	if err := Crossing(h); err != nil {
		return err
	}
	if err := References(h); err != nil {
		return err
	}
	return Cards(h)
}

// objects yields every object of the collected spaces in address order.
func objects(h Heap, yield func(addr mem.Address, size uint64) error) error {
	model := h.Model()
	for addr, size := range h.Young().Objects(model.SizeOf) {
		if err := yield(addr, size); err != nil {
			return err
		}
	}
	for addr, size := range h.Old().Objects(model.SizeOf) {
		if err := yield(addr, size); err != nil {
			return err
		}
	}
	for addr := range h.Large().Objects() {
		if err := yield(addr, model.SizeOf(addr)); err != nil {
			return err
		}
	}
	return nil
}

// Headers checks that every object has a plain class word naming a
// registered class, a clear mark bit and no relocation address.
func Headers(h Heap) error {
	arena, classes := h.Arena(), h.Model().Classes()
	return objects(h, func(addr mem.Address, _ uint64) error {
		hd := header.At(arena, addr)
		w := hd.Word()
		if w.State() != header.StateClass {
			return &ValidationError{Type: "Headers", Message: fmt.Sprintf("class word is %v", w), Addr: addr}
		}
		if _, err := classes.ClassAt(w.Address()); err != nil {
			return &ValidationError{Type: "Headers", Message: err.Error(), Addr: addr}
		}
		if hd.IsMarked() {
			return &ValidationError{Type: "Headers", Message: "mark bit set outside a cycle", Addr: addr}
		}
		if r := hd.Relocation(); !r.IsNull() {
			return &ValidationError{Type: "Headers", Message: fmt.Sprintf("stale relocation address %v", r), Addr: addr}
		}
		return nil
	})
}

// MarksClear checks that no object carries a mark bit.
func MarksClear(h Heap) error {
	arena := h.Arena()
	return objects(h, func(addr mem.Address, _ uint64) error {
		if header.At(arena, addr).IsMarked() {
			return &ValidationError{Type: "MarksClear", Message: "object is marked", Addr: addr}
		}
		return nil
	})
}

// Crossing checks every crossing map entry of the old generation against a
// linear walk.
func Crossing(h Heap) error {
	old, cards := h.Old(), h.Cards()
	cm := old.Crossing()
	top := old.Top()

	covering := mem.Null
	next := old.Region().Start
	pull, stop := iter.Pull2(old.Objects(h.Model().SizeOf))
	defer stop()

	for i := range cm.Len() {
		start := cards.CardStart(i)
		if start >= top {
			if !cm.Entry(i).IsEmpty() {
				return &ValidationError{
					Type:    "Crossing",
					Message: fmt.Sprintf("card %d beyond top %v has entry %v", i, top, cm.Entry(i)),
					Addr:    start,
				}
			}
			continue
		}
		for next <= start {
			addr, size, ok := pull()
			if !ok {
				break
			}
			covering, next = addr, addr.Add(size)
		}
		got, ok := cm.FindFirstObject(i)
		if !ok || got != covering {
			return &ValidationError{
				Type:    "Crossing",
				Message: fmt.Sprintf("card %d resolves to %v, walk found %v", i, got, covering),
				Addr:    start,
				Details: map[string]any{"entry": cm.Entry(i).String()},
			}
		}
	}
	return nil
}

// References checks that every reference slot holds null, a permanent
// space address, or the start of an object in the collected spaces.
func References(h Heap) error {
	arena, model, perm := h.Arena(), h.Model(), h.Perm()
	starts := make(map[mem.Address]struct{})
	var live []mem.Address
	if err := objects(h, func(addr mem.Address, _ uint64) error {
		starts[addr] = struct{}{}
		live = append(live, addr)
		return nil
	}); err != nil {
		return err
	}

	for _, obj := range live {
		var bad *ValidationError
		model.ForEachReferenceField(obj, func(slot mem.Address) {
			v := arena.Load(slot)
			if bad != nil || v.IsNull() || perm.Contains(v) {
				return
			}
			if _, ok := starts[v]; !ok {
				bad = &ValidationError{
					Type:    "References",
					Message: fmt.Sprintf("slot %v holds %v, which is not an object start", slot, v),
					Addr:    obj,
				}
			}
		})
		if bad != nil {
			return bad
		}
	}
	return nil
}

// Cards checks that every old generation slot referencing a young object
// lies in a dirty card.
func Cards(h Heap) error {
	arena, model, young, cards := h.Arena(), h.Model(), h.Young(), h.Cards()
	for addr := range h.Old().Objects(model.SizeOf) {
		var bad *ValidationError
		model.ForEachReferenceField(addr, func(slot mem.Address) {
			if bad == nil && young.Contains(arena.Load(slot)) && !cards.IsDirty(cards.IndexOf(slot)) {
				bad = &ValidationError{
					Type:    "Cards",
					Message: fmt.Sprintf("slot %v references young object %v from a clean card", slot, arena.Load(slot)),
					Addr:    addr,
				}
			}
		})
		if bad != nil {
			return bad
		}
	}
	return nil
}
