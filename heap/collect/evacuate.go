package collect

import (
	"errors"
	"fmt"

	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/heap/marking"
	"github.com/joshuapare/swiper/heap/space"
	"github.com/joshuapare/swiper/internal/mem"
	"github.com/joshuapare/swiper/internal/parallel"
)

func (cy *cycle) markLive() error {
	stats, err := marking.Start(cy.ctx, cy.roots, cy.s.Model, cy.heap, cy.opts.Workers)
	if err != nil {
		return fmt.Errorf("collect: mark: %w", err)
	}
	cy.res.Marked = stats.Marked
	cy.res.MarkedBytes = stats.Bytes
	return nil
}

// evacuateYoung reserves a destination for every marked young object,
// installs the forwards serially and then copies in parallel.
func (cy *cycle) evacuateYoung() error {
	arena, model := cy.s.Arena, cy.s.Model

	for addr, size := range cy.s.Young.Objects(model.SizeOf) {
		h := header.At(arena, addr)
		if !h.IsMarked() {
			continue
		}
		cy.youngLive += size
		cls := h.ClassPointer()
		refs := model.ClassFor(addr, cls).HasRefs()

		dest, err := cy.reserve(size, refs)
		if errors.Is(err, space.ErrNoSpace) {
			if _, ok := h.MarkForwardFailed(cls); !ok {
				header.Violation(addr, "EvacuateYoung", "failure sentinel lost to a concurrent outcome")
			}
			cy.failed = append(cy.failed, addr)
			continue
		}
		if err != nil {
			return fmt.Errorf("collect: evacuate %v: %w", addr, err)
		}

		got, ok := h.TryInstallForward(cls, dest)
		if !ok {
			if err := cy.unreserve(dest, size); err != nil {
				return err
			}
			if got == addr {
				cy.failed = append(cy.failed, addr)
			}
			continue
		}
		cy.evacuated = append(cy.evacuated, move{src: addr, dest: dest, size: size, cls: cls, refs: refs})
	}

	err := parallel.For(cy.ctx, len(cy.evacuated), cy.opts.Workers, func(i int) error {
		m := cy.evacuated[i]
		arena.Copy(m.dest, m.src, m.size)
		header.At(arena, m.dest).SetClassPointer(m.cls)
		return nil
	})
	if err != nil {
		return fmt.Errorf("collect: copy survivors: %w", err)
	}

	for _, m := range cy.evacuated {
		cy.res.EvacuatedBytes += m.size
		if m.refs && cy.s.Old.Contains(m.dest) {
			cy.dirtyYoungRefs(m.dest)
		}
	}
	cy.res.Evacuated = uint64(len(cy.evacuated))
	return nil
}

// reserve takes room for a survivor of size bytes. Sizes at or above the
// large threshold go to the large object space.
func (cy *cycle) reserve(size uint64, refs bool) (mem.Address, error) {
	if size >= cy.opts.LargeThreshold {
		return cy.s.Large.Alloc(size, refs)
	}
	return cy.s.Old.Alloc(size)
}

// unreserve gives back a destination whose forward lost the race.
func (cy *cycle) unreserve(dest mem.Address, size uint64) error {
	if cy.s.Large.Contains(dest) {
		return cy.s.Large.Free(dest)
	}
	cy.s.Old.Fill(dest, size)
	return nil
}

// dirtyYoungRefs dirties the card of every slot of the copy at addr that
// references a young object left in place.
func (cy *cycle) dirtyYoungRefs(addr mem.Address) {
	arena := cy.s.Arena
	cy.s.Model.ForEachReferenceField(addr, func(slot mem.Address) {
		v := arena.Load(slot)
		if cy.s.Young.Contains(v) && header.At(arena, v).Word().State() == header.StateForwardFailed {
			cy.s.Cards.MarkDirty(slot)
		}
	})
}
