package collect

import (
	"errors"
	"fmt"

	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/heap/space"
	"github.com/joshuapare/swiper/internal/mem"
)

func (cy *cycle) sweepCompactOld() error {
	if err := cy.computeRelocations(); err != nil {
		return err
	}
	if err := cy.sweepLarge(); err != nil {
		return err
	}
	return cy.retryFailed()
}

// computeRelocations walks the old generation card by card and gives
// every marked object the address it will have after sliding: the sum of
// the sizes of the marked objects below it. The crossing map of the
// compacted layout is built alongside.
func (cy *cycle) computeRelocations() error {
	arena, model, old := cy.s.Arena, cy.s.Model, cy.s.Old
	cm, cards := old.Crossing(), cy.s.Cards

	cy.scratch = cm.Scratch()
	dest := old.Region().Start
	top := old.Top()

	cursor := old.Region().Start
	covering := mem.Null
	for i := 0; i < cm.Len(); i++ {
		start := cards.CardStart(i)
		if start >= top {
			break
		}
		first, ok := cm.FindFirstObject(i)
		if !ok {
			header.Violation(start, "SweepCompactOld", "no object recorded for card %d below top %v", i, top)
		}
		if cursor == start {
			covering = cursor
		}
		if first != covering {
			header.Violation(start, "SweepCompactOld", "crossing map names %v for card %d, walk found %v", first, i, covering)
		}

		end := min(cards.CardEnd(i), top)
		for cursor < end {
			size := model.SizeOf(cursor)
			h := header.At(arena, cursor)
			if h.IsMarked() {
				h.SetRelocation(dest)
				cy.scratch.RecordObject(dest, dest.Add(size))
				cy.survivors = append(cy.survivors, move{src: cursor, dest: dest, size: size})
				dest = dest.Add(size)
			} else {
				cy.res.Reclaimed += size
			}
			covering = cursor
			cursor = cursor.Add(size)
		}
	}
	if cursor != top {
		header.Violation(cursor, "SweepCompactOld", "walk ended at %v, top is %v", cursor, top)
	}
	cy.newTop = dest
	return nil
}

func (cy *cycle) sweepLarge() error {
	arena, large := cy.s.Arena, cy.s.Large
	for addr, size := range large.Objects() {
		if header.At(arena, addr).IsMarked() {
			cy.large = append(cy.large, addr)
			continue
		}
		if err := large.Free(addr); err != nil {
			return fmt.Errorf("collect: sweep large: %w", err)
		}
		cy.res.LargeFreed++
		cy.res.Reclaimed += size
	}
	return nil
}

// retryFailed places every young object whose evacuation failed: large
// ones in the large object space, the rest in the old generation tail
// freed by compaction. The object is not copied until Repair, so its
// destination stays out of cy.large: the slots are repaired at the young
// source.
func (cy *cycle) retryFailed() error {
	arena, model := cy.s.Arena, cy.s.Model
	limit := cy.s.Old.Region().End

	for _, addr := range cy.failed {
		h := header.At(arena, addr)
		h.RepairClassPointer()
		cls := model.ClassOf(addr)
		size := model.SizeFor(addr, cls)

		var dest mem.Address
		if size >= cy.opts.LargeThreshold {
			var err error
			dest, err = cy.s.Large.Alloc(size, cls.HasRefs())
			if errors.Is(err, space.ErrNoSpace) {
				return fmt.Errorf("%w: %d byte object at %v does not fit the large object space", ErrOutOfMemory, size, addr)
			}
			if err != nil {
				return fmt.Errorf("collect: retry %v: %w", addr, err)
			}
		} else {
			if cy.newTop.Add(size) > limit {
				return fmt.Errorf("%w: %d byte object at %v does not fit the old generation", ErrOutOfMemory, size, addr)
			}
			dest = cy.newTop
			cy.scratch.RecordObject(dest, dest.Add(size))
			cy.newTop = dest.Add(size)
		}
		h.SetRelocation(dest)
		cy.retried = append(cy.retried, move{src: addr, dest: dest, size: size, cls: cls.Addr, refs: cls.HasRefs()})
	}
	cy.res.Retried = uint64(len(cy.retried))
	cy.res.Promoted = cy.res.Evacuated + cy.res.Retried
	return nil
}
