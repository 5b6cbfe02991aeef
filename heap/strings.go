package heap

import (
	"fmt"
	"unicode/utf8"

	"github.com/joshuapare/swiper/heap/layout"
	"github.com/joshuapare/swiper/internal/mem"
)

// allocStr allocates a string of n bytes. The caller fills the content.
func (h *Heap) allocStr(n uint64) (mem.Address, error) {
	str := h.classes.Builtins().Str
	size, ok := layout.ArraySize(str, n)
	if !ok {
		return mem.Null, fmt.Errorf("%w: string of %d bytes", layout.ErrTooLarge, n)
	}
	addr, err := h.Alloc(size, false)
	if err != nil {
		return mem.Null, err
	}
	layout.InitStr(h.arena, addr, str, nil)
	h.arena.StoreWord(addr+layout.LengthOffset, n)
	return addr, nil
}

func (h *Heap) str(s mem.Address) (layout.Str, error) {
	if s.IsNull() {
		return layout.Str{}, fmt.Errorf("%w: null string", ErrWrongKind)
	}
	if c := h.model.ClassOf(s); c.Kind != layout.KindStr {
		return layout.Str{}, fmt.Errorf("%w: %s is %v, want Str", ErrWrongKind, c.Name, c.Kind)
	}
	return layout.StrAt(h.arena, s), nil
}

// Substring returns a new string holding up to n bytes of s starting at
// offset. n is clamped to the end of s. An offset past the end, or a
// range that is not valid UTF-8, yields Null with no error.
func (h *Heap) Substring(s mem.Address, offset, n uint64) (mem.Address, error) {
	src, err := h.str(s)
	if err != nil {
		return mem.Null, err
	}
	total := src.Len()
	if offset > total {
		return mem.Null, nil
	}
	n = min(n, total-offset)
	if !utf8.Valid(src.Bytes()[offset : offset+n]) {
		return mem.Null, nil
	}
	return h.copyStr(s, offset, n)
}

// copyStr copies n bytes of s from offset into a new string, keeping s
// rooted across the allocation.
func (h *Heap) copyStr(s mem.Address, offset, n uint64) (mem.Address, error) {
	h.handles.Push()
	defer h.handles.Pop()
	slot := h.handles.New(s)

	addr, err := h.allocStr(n)
	if err != nil {
		return mem.Null, err
	}
	if n > 0 {
		copy(layout.StrAt(h.arena, addr).Bytes(), layout.StrAt(h.arena, slot.Get()).Bytes()[offset:offset+n])
	}
	return addr, nil
}

// Concat returns a new string holding a followed by b. Both inputs stay
// rooted across the allocation, which may collect and move them.
func (h *Heap) Concat(a, b mem.Address) (mem.Address, error) {
	sa, err := h.str(a)
	if err != nil {
		return mem.Null, err
	}
	sb, err := h.str(b)
	if err != nil {
		return mem.Null, err
	}
	la, lb := sa.Len(), sb.Len()
	if la+lb < la {
		return mem.Null, fmt.Errorf("%w: concatenation overflows", layout.ErrTooLarge)
	}

	h.handles.Push()
	defer h.handles.Pop()
	ha, hb := h.handles.New(a), h.handles.New(b)

	addr, err := h.allocStr(la + lb)
	if err != nil {
		return mem.Null, err
	}
	dst := layout.StrAt(h.arena, addr).Bytes()
	copy(dst, layout.StrAt(h.arena, ha.Get()).Bytes())
	copy(dst[la:], layout.StrAt(h.arena, hb.Get()).Bytes())
	return addr, nil
}

// DupString returns a copy of s in the collected heap. Permanent strings
// may be duplicated too.
func (h *Heap) DupString(s mem.Address) (mem.Address, error) {
	src, err := h.str(s)
	if err != nil {
		return mem.Null, err
	}
	return h.copyStr(s, 0, src.Len())
}

// StringText returns the content of s for display. Bytes that are not
// UTF-8 decode as Latin-1.
func (h *Heap) StringText(s mem.Address) (string, error) {
	src, err := h.str(s)
	if err != nil {
		return "", err
	}
	return src.Text(), nil
}
