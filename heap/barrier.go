package heap

import (
	"fmt"

	"github.com/joshuapare/swiper/heap/layout"
	"github.com/joshuapare/swiper/internal/mem"
)

// StoreRef writes val into the reference field at byte offset off of obj
// and dirties the card of the field when obj is in the old generation.
func (h *Heap) StoreRef(obj mem.Address, off uint64, val mem.Address) error {
	if err := h.checkPermStore(obj, val); err != nil {
		return err
	}
	slot := obj.Add(off)
	h.arena.Store(slot, val)
	h.cards.MarkDirty(slot)
	return nil
}

// LoadRef reads the reference field at byte offset off of obj.
func (h *Heap) LoadRef(obj mem.Address, off uint64) mem.Address {
	return h.arena.Load(obj.Add(off))
}

// StoreElem writes val into element i of the reference array arr, with
// the same barrier as StoreRef.
func (h *Heap) StoreElem(arr mem.Address, i uint64, val mem.Address) error {
	slot, err := h.elem(arr, i)
	if err != nil {
		return err
	}
	if err := h.checkPermStore(arr, val); err != nil {
		return err
	}
	h.arena.Store(slot, val)
	h.cards.MarkDirty(slot)
	return nil
}

// LoadElem reads element i of the reference array arr.
func (h *Heap) LoadElem(arr mem.Address, i uint64) (mem.Address, error) {
	slot, err := h.elem(arr, i)
	if err != nil {
		return mem.Null, err
	}
	return h.arena.Load(slot), nil
}

func (h *Heap) elem(arr mem.Address, i uint64) (mem.Address, error) {
	c := h.model.ClassOf(arr)
	if c.Kind != layout.KindObjArray {
		return mem.Null, fmt.Errorf("%w: %s is %v, want ObjArray", ErrWrongKind, c.Name, c.Kind)
	}
	return layout.ArrayAt(h.arena, arr, c).ElemAddr(i)
}

func (h *Heap) checkPermStore(obj, val mem.Address) error {
	if h.perm.Contains(obj) && !val.IsNull() && !h.perm.Contains(val) {
		return fmt.Errorf("%w: store of %v into %v", ErrPermReference, val, obj)
	}
	return nil
}
