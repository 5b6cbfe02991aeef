package heap

import (
	"errors"
	"fmt"

	"github.com/joshuapare/swiper/heap/collect"
	"github.com/joshuapare/swiper/heap/layout"
	"github.com/joshuapare/swiper/heap/space"
	"github.com/joshuapare/swiper/internal/mem"
)

// Alloc reserves size bytes of zeroed memory for a new object. Objects of
// at least LargeThreshold bytes go to the large object space, everything
// else to the young generation. refs records whether the object may hold
// references. When the space is full a collection runs and the request is
// retried once; failing again is fatal.
func (h *Heap) Alloc(size uint64, refs bool) (mem.Address, error) {
	size = max(size, layout.MinObjectSize)
	if size >= h.opts.LargeThreshold {
		return h.retry(size, collect.ReasonLargeFailure, func() (mem.Address, error) {
			return h.large.Alloc(size, refs)
		})
	}
	return h.retry(size, collect.ReasonAllocFailure, func() (mem.Address, error) {
		return h.young.Alloc(size)
	})
}

// AllocOld reserves size bytes directly in the old generation.
func (h *Heap) AllocOld(size uint64) (mem.Address, error) {
	size = max(size, layout.MinObjectSize)
	return h.retry(size, collect.ReasonAllocFailure, func() (mem.Address, error) {
		h.old.Lock()
		defer h.old.Unlock()
		return h.old.Alloc(size)
	})
}

// AllocPerm reserves size bytes in permanent space. Permanent space is
// never collected, so exhaustion is returned as an error.
func (h *Heap) AllocPerm(size uint64) (mem.Address, error) {
	addr, err := h.perm.Alloc(max(size, layout.MinObjectSize))
	if err != nil {
		return mem.Null, fmt.Errorf("heap: permanent space: %w", err)
	}
	return addr, nil
}

func (h *Heap) retry(size uint64, reason collect.Reason, alloc func() (mem.Address, error)) (mem.Address, error) {
	addr, err := alloc()
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, space.ErrNoSpace) {
		return mem.Null, err
	}

	h.log.Debug("heap: allocation failed, collecting", "size", size, "reason", reason)
	if _, err := h.Collect(reason); err != nil {
		return mem.Null, err
	}
	addr, err = alloc()
	if err != nil {
		return mem.Null, h.fatal(fmt.Errorf("%w: %d bytes after collection: %w", collect.ErrOutOfMemory, size, err))
	}
	return addr, nil
}

// NewObject allocates an instance of the fixed-size class c.
func (h *Heap) NewObject(c *layout.Class) (mem.Address, error) {
	if c.Kind != layout.KindFixed {
		return mem.Null, fmt.Errorf("%w: %s is %v, want Fixed", ErrWrongKind, c.Name, c.Kind)
	}
	addr, err := h.Alloc(c.Size, c.HasRefs())
	if err != nil {
		return mem.Null, err
	}
	layout.InitObject(h.arena, addr, c)
	return addr, nil
}

// NewArray allocates an array of class c with n zeroed elements.
func (h *Heap) NewArray(c *layout.Class, n uint64) (mem.Address, error) {
	if c.Kind != layout.KindArray && c.Kind != layout.KindObjArray {
		return mem.Null, fmt.Errorf("%w: %s is %v, want an array", ErrWrongKind, c.Name, c.Kind)
	}
	size, ok := layout.ArraySize(c, n)
	if !ok {
		return mem.Null, fmt.Errorf("%w: %s of %d elements", layout.ErrTooLarge, c.Name, n)
	}
	addr, err := h.Alloc(size, c.HasRefs())
	if err != nil {
		return mem.Null, err
	}
	layout.InitArray(h.arena, addr, c, n)
	return addr, nil
}

// NewString allocates a string holding s.
func (h *Heap) NewString(s string) (mem.Address, error) {
	addr, err := h.allocStr(uint64(len(s)))
	if err != nil {
		return mem.Null, err
	}
	copy(layout.StrAt(h.arena, addr).Bytes(), s)
	return addr, nil
}

// NewPermString returns the interned permanent string holding s,
// allocating it on first use.
func (h *Heap) NewPermString(s string) (mem.Address, error) {
	h.internMu.Lock()
	defer h.internMu.Unlock()
	if addr, ok := h.interned[s]; ok {
		return addr, nil
	}

	str := h.classes.Builtins().Str
	size, ok := layout.ArraySize(str, uint64(len(s)))
	if !ok {
		return mem.Null, fmt.Errorf("%w: string of %d bytes", layout.ErrTooLarge, len(s))
	}
	addr, err := h.AllocPerm(size)
	if err != nil {
		return mem.Null, err
	}
	layout.InitStr(h.arena, addr, str, []byte(s))
	h.interned[s] = addr
	return addr, nil
}
