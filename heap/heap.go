package heap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joshuapare/swiper/heap/card"
	"github.com/joshuapare/swiper/heap/collect"
	"github.com/joshuapare/swiper/heap/crossing"
	"github.com/joshuapare/swiper/heap/layout"
	"github.com/joshuapare/swiper/heap/root"
	"github.com/joshuapare/swiper/heap/space"
	"github.com/joshuapare/swiper/heap/verify"
	"github.com/joshuapare/swiper/internal/mem"
)

// Heap is a managed heap.
type Heap struct {
	opts Options
	log  *slog.Logger

	arena     *mem.Arena
	perm      *space.Perm
	young     *space.Young
	old       *space.Old
	large     *space.Large
	cards     *card.Table
	classes   *layout.Registry
	model     *layout.Model
	collector *collect.Collector

	handles *root.Handles
	globals []mem.Address // permanent space slots

	internMu sync.Mutex
	interned map[string]mem.Address

	listenMu  sync.Mutex
	listeners []func(collect.Result)

	statsMu sync.Mutex
	stats   Stats
}

// Stats is a snapshot of heap usage and collector activity.
type Stats struct {
	Cycles     uint64
	TotalPause time.Duration
	Last       collect.Result

	PermUsed     uint64
	YoungUsed    uint64
	OldUsed      uint64
	LargeUsed    uint64
	LargeObjects int
	DirtyCards   int
	Classes      int
	Interned     int
}

// New reserves the arena and sets up every space. A nil opts uses
// DefaultOptions.
func New(opts *Options) (*Heap, error) {
	o := opts.withDefaults()
	perm := mem.AlignPage(o.PermSize)
	young := mem.AlignPage(o.YoungSize)
	old := mem.AlignPage(o.OldSize)
	large := mem.AlignPage(o.LargeSize)
	old, err := fitHeapSize(young, old, large, o.MinHeapSize, o.MaxHeapSize)
	if err != nil {
		return nil, err
	}

	total := perm
	for _, n := range []uint64{young, old, large} {
		var ok bool
		if total, ok = mem.AddOverflowSafe(total, n); !ok {
			return nil, fmt.Errorf("heap: %w: spaces overflow", mem.ErrBadSize)
		}
	}
	arena, err := mem.Reserve(total)
	if err != nil {
		return nil, fmt.Errorf("heap: %w", err)
	}

	next := arena.Region().Start
	carve := func(n uint64) mem.Region {
		r := mem.Region{Start: next, End: next.Add(n)}
		next = r.End
		return r
	}
	permR, youngR, oldR, largeR := carve(perm), carve(young), carve(old), carve(large)

	h := &Heap{
		opts:     o,
		log:      o.Logger,
		arena:    arena,
		perm:     space.NewPerm(permR),
		young:    space.NewYoung(arena, youngR),
		large:    space.NewLarge(arena, largeR),
		cards:    card.New(oldR),
		handles:  root.NewHandles(),
		interned: make(map[string]mem.Address),
	}
	h.classes, err = layout.NewRegistry(arena, h.perm)
	if err != nil {
		_ = arena.Close()
		return nil, fmt.Errorf("heap: %w", err)
	}
	h.model = layout.NewModel(arena, h.classes)
	h.old = space.NewOld(arena, oldR, crossing.New(oldR, h.model.SizeOf), h.classes.Builtins().FreeArray)

	h.collector, err = collect.New(collect.Spaces{
		Arena: arena,
		Model: h.model,
		Young: h.young,
		Old:   h.old,
		Large: h.large,
		Perm:  h.perm,
		Cards: h.cards,
	}, collect.Options{
		Workers:        o.Workers,
		LargeThreshold: o.LargeThreshold,
		Logger:         o.Logger,
	})
	if err != nil {
		_ = arena.Close()
		return nil, fmt.Errorf("heap: %w", err)
	}

	h.log.Debug("heap: created",
		"perm", permR, "young", youngR, "old", oldR, "large", largeR,
		"large_threshold", o.LargeThreshold, "workers", o.Workers)
	return h, nil
}

// fitHeapSize returns the old generation size that brings young, old and
// large within [lo, hi]. Bounds are rounded up to pages.
func fitHeapSize(young, old, large, lo, hi uint64) (uint64, error) {
	lo, hi = mem.AlignPage(lo), mem.AlignPage(hi)
	if hi != 0 && lo > hi {
		return 0, fmt.Errorf("%w: minimum %d exceeds maximum %d", ErrHeapSize, lo, hi)
	}
	size, ok := mem.AddOverflowSafe(young, old)
	if ok {
		size, ok = mem.AddOverflowSafe(size, large)
	}
	if !ok {
		return 0, fmt.Errorf("heap: %w: spaces overflow", mem.ErrBadSize)
	}
	if hi != 0 && size > hi {
		return 0, fmt.Errorf("%w: %d bytes of spaces exceed maximum %d", ErrHeapSize, size, hi)
	}
	if size < lo {
		old += lo - size
	}
	return old, nil
}

// Close unmaps the arena. Addresses from the heap must not be used
// afterwards.
func (h *Heap) Close() error {
	return h.arena.Close()
}

// Arena returns the backing arena.
func (h *Heap) Arena() *mem.Arena { return h.arena }

// Model returns the object layout model.
func (h *Heap) Model() *layout.Model { return h.model }

// Classes returns the class registry.
func (h *Heap) Classes() *layout.Registry { return h.classes }

// Young returns the young generation.
func (h *Heap) Young() *space.Young { return h.young }

// Old returns the old generation.
func (h *Heap) Old() *space.Old { return h.old }

// Large returns the large object space.
func (h *Heap) Large() *space.Large { return h.large }

// Perm returns the permanent space.
func (h *Heap) Perm() *space.Perm { return h.perm }

// Cards returns the old generation card table.
func (h *Heap) Cards() *card.Table { return h.cards }

// Crossing returns the old generation crossing map.
func (h *Heap) Crossing() *crossing.Map { return h.old.Crossing() }

// Collector returns the collector.
func (h *Heap) Collector() *collect.Collector { return h.collector }

// Handles returns the heap's handle scopes. Every live handle is a root.
func (h *Heap) Handles() *root.Handles { return h.handles }

// NewGlobal allocates a reference slot in permanent space holding v. The
// slot is a root for the lifetime of the heap.
func (h *Heap) NewGlobal(v mem.Address) (root.Slot, error) {
	addr, err := h.perm.Alloc(mem.PtrSize)
	if err != nil {
		return root.Slot{}, fmt.Errorf("heap: allocate global: %w", err)
	}
	h.globals = append(h.globals, addr)
	s := root.InHeap(h.arena, addr)
	s.Set(v)
	return s, nil
}

// Roots returns the current root set: handles, globals and the slots of
// the Roots provider.
func (h *Heap) Roots() []root.Slot {
	slots := h.handles.Slots()
	for _, g := range h.globals {
		slots = append(slots, root.InHeap(h.arena, g))
	}
	if h.opts.Roots != nil {
		slots = append(slots, h.opts.Roots()...)
	}
	return slots
}

// OnCollect registers fn to be called after every completed cycle.
func (h *Heap) OnCollect(fn func(collect.Result)) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Collect runs a full collection cycle. A failed cycle is fatal: Abort is
// called and the error returned.
func (h *Heap) Collect(reason collect.Reason) (collect.Result, error) {
	if h.opts.Verify {
		if err := verify.MarksClear(h); err != nil {
			return collect.Result{}, h.fatal(fmt.Errorf("heap: before collection: %w", err))
		}
	}

	res, err := h.collector.Collect(context.Background(), reason, h.Roots())
	if err != nil {
		return res, h.fatal(err)
	}

	if h.opts.Verify {
		if err := verify.AllInvariants(h); err != nil {
			return res, h.fatal(fmt.Errorf("heap: after collection: %w", err))
		}
	}

	h.statsMu.Lock()
	h.stats.Cycles++
	h.stats.TotalPause += res.Duration
	h.stats.Last = res
	h.statsMu.Unlock()

	h.listenMu.Lock()
	listeners := h.listeners
	h.listenMu.Unlock()
	for _, fn := range listeners {
		fn(res)
	}
	return res, nil
}

// Stats returns current usage and collector totals.
func (h *Heap) Stats() Stats {
	h.statsMu.Lock()
	s := h.stats
	h.statsMu.Unlock()

	h.internMu.Lock()
	s.Interned = len(h.interned)
	h.internMu.Unlock()

	s.PermUsed = h.perm.Used()
	s.YoungUsed = h.young.Used()
	s.OldUsed = h.old.Used()
	s.LargeUsed = h.large.Used()
	s.LargeObjects = h.large.Len()
	s.DirtyCards = h.cards.DirtyCount()
	s.Classes = len(h.classes.Classes())
	return s
}

func (h *Heap) fatal(err error) error {
	h.opts.Abort(err)
	return err
}
