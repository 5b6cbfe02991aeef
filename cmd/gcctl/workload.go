package main

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/joshuapare/swiper/heap"
	"github.com/joshuapare/swiper/heap/collect"
	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/heap/layout"
	"github.com/joshuapare/swiper/heap/root"
	"github.com/joshuapare/swiper/internal/logger"
	"github.com/joshuapare/swiper/internal/mem"
)

// Node field offsets.
const (
	nodeLeft  = header.Size
	nodeRight = header.Size + 8
	nodeData  = header.Size + 16
	nodeValue = header.Size + 24
	nodeSize  = header.Size + 32
)

const (
	// numRoots is the number of trees the mutator keeps alive.
	numRoots = 64

	// maxDepth bounds how far an insertion walks down a tree.
	maxDepth = 8

	// largeElems is the length of the arrays that go to the large
	// object space with the default threshold.
	largeElems = 4096

	// labelPrefix starts every node label. It is interned in the
	// permanent space.
	labelPrefix = "node-"
)

// workloadConfig is the shape of a synthetic run.
type workloadConfig struct {
	Objects   int    // allocations per cycle
	Cycles    int    // explicit collections
	Seed      uint64 // random seed, runs are reproducible
	YoungSize uint64
	OldSize   uint64
	LargeSize uint64
	Workers   int
	Verify    bool
}

// workload is a mutator building random binary trees. Every object it
// holds is reachable from a handle, so allocations may collect at any
// point without invalidating its state.
type workload struct {
	cfg  workloadConfig
	h    *heap.Heap
	rng  *rand.Rand
	node *layout.Class

	prefix  mem.Address // permanent labelPrefix
	roots   []root.Slot
	scratch root.Slot // newest node until it is linked
	data    root.Slot // payload of the next node

	aborted error
	results []collect.Result
}

func newWorkload(cfg workloadConfig) (*workload, error) {
	w := &workload{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}

	h, err := heap.New(&heap.Options{
		YoungSize: cfg.YoungSize,
		OldSize:   cfg.OldSize,
		LargeSize: cfg.LargeSize,
		Workers:   cfg.Workers,
		Verify:    cfg.Verify,
		Logger:    logger.L,
		Abort: func(err error) {
			logger.Error("gcctl: fatal heap error", "error", err)
			w.aborted = err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create heap: %w", err)
	}
	w.h = h

	w.node, err = h.Classes().DefineFixed("Node", nodeSize, nodeLeft, nodeRight, nodeData)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("failed to define Node: %w", err)
	}

	w.prefix, err = h.NewPermString(labelPrefix)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("failed to intern label prefix: %w", err)
	}

	handles := h.Handles()
	for range numRoots {
		w.roots = append(w.roots, handles.New(mem.Null))
	}
	w.scratch = handles.New(mem.Null)
	w.data = handles.New(mem.Null)

	h.OnCollect(func(res collect.Result) {
		w.results = append(w.results, res)
	})
	return w, nil
}

// Close releases the heap.
func (w *workload) Close() error {
	return w.h.Close()
}

// Heap returns the heap the workload runs on.
func (w *workload) Heap() *heap.Heap {
	return w.h
}

// Run performs every configured cycle: cfg.Objects allocations followed by
// an explicit collection.
func (w *workload) Run() error {
	for i := range w.cfg.Cycles {
		if err := w.mutate(); err != nil {
			return fmt.Errorf("cycle %d: %w", i+1, err)
		}
		if _, err := w.h.Collect(collect.ReasonExplicit); err != nil {
			return fmt.Errorf("cycle %d: %w", i+1, err)
		}
	}
	return nil
}

// Results returns every completed cycle, including those triggered by
// allocation failures.
func (w *workload) Results() []collect.Result {
	return w.results
}

func (w *workload) mutate() error {
	for range w.cfg.Objects {
		if err := w.step(); err != nil {
			return err
		}
		if w.aborted != nil {
			return w.aborted
		}
	}
	return nil
}

// step allocates one node with an optional payload and links it into a
// random tree.
func (w *workload) step() error {
	w.data.Set(mem.Null)
	if err := w.allocData(); err != nil {
		return err
	}

	n, err := w.h.NewObject(w.node)
	if err != nil {
		return err
	}
	w.scratch.Set(n)
	layout.ObjAt(w.h.Arena(), n).SetWord(nodeValue, w.rng.Uint64())
	if err := w.h.StoreRef(n, nodeData, w.data.Get()); err != nil {
		return err
	}

	r := w.roots[w.rng.IntN(len(w.roots))]
	parent := r.Get()
	if parent == mem.Null || w.rng.IntN(8) == 0 {
		r.Set(n)
		return nil
	}

	for range maxDepth {
		off := w.childOffset()
		child := w.h.LoadRef(parent, off)
		if child == mem.Null {
			break
		}
		parent = child
	}
	return w.h.StoreRef(parent, w.childOffset(), w.scratch.Get())
}

func (w *workload) childOffset() uint64 {
	if w.rng.IntN(2) == 0 {
		return nodeLeft
	}
	return nodeRight
}

// allocData leaves the payload of the next node in w.data: nothing, a
// string, a primitive array or, rarely, a large array.
func (w *workload) allocData() error {
	b := w.h.Classes().Builtins()
	var (
		addr mem.Address
		err  error
	)
	switch k := w.rng.IntN(64); {
	case k == 0 && w.rng.IntN(8) == 0:
		addr, err = w.h.NewArray(b.LongArray, largeElems)
	case k < 16:
		addr, err = w.label(k < 4)
	case k < 24:
		addr, err = w.h.NewArray(b.DoubleArray, uint64(1+w.rng.IntN(32)))
	default:
		return nil
	}
	if err != nil {
		return err
	}
	w.data.Set(addr)
	return nil
}

// label builds "node-<n>" by concatenation. Short labels keep the first
// eight bytes.
func (w *workload) label(short bool) (mem.Address, error) {
	n, err := w.h.NewString(strconv.FormatUint(uint64(w.rng.Uint32()), 10))
	if err != nil {
		return mem.Null, err
	}
	s, err := w.h.Concat(w.prefix, n)
	if err != nil || !short {
		return s, err
	}
	return w.h.Substring(s, 0, 8)
}

// liveClass aggregates the surviving objects of one class.
type liveClass struct {
	Class   string `json:"class"`
	Objects int64  `json:"objects"`
	Bytes   int64  `json:"bytes"`
}

// live groups every object in the young, old and large spaces by class.
// Fillers are skipped. Without a preceding collection the counts include
// garbage.
func (w *workload) live() []liveClass {
	model := w.h.Model()
	filler := w.h.Classes().Builtins().FreeArray

	byClass := make(map[*layout.Class]*liveClass)
	var order []*layout.Class
	add := func(addr mem.Address, size uint64) {
		c := model.ClassOf(addr)
		if c == filler {
			return
		}
		lc, ok := byClass[c]
		if !ok {
			lc = &liveClass{Class: c.Name}
			byClass[c] = lc
			order = append(order, c)
		}
		lc.Objects++
		lc.Bytes += int64(size)
	}

	for addr, size := range w.h.Young().Objects(model.SizeOf) {
		add(addr, size)
	}
	for addr, size := range w.h.Old().Objects(model.SizeOf) {
		add(addr, size)
	}
	for addr := range w.h.Large().Objects() {
		add(addr, model.SizeOf(addr))
	}

	out := make([]liveClass, 0, len(order))
	for _, c := range order {
		out = append(out, *byClass[c])
	}
	return out
}

// stringSamples returns the text of up to limit surviving strings, oldest
// space first.
func (w *workload) stringSamples(limit int) ([]string, error) {
	model := w.h.Model()
	str := w.h.Classes().Builtins().Str

	var out []string
	add := func(addr mem.Address) error {
		if len(out) >= limit || model.ClassOf(addr) != str {
			return nil
		}
		text, err := w.h.StringText(addr)
		if err != nil {
			return err
		}
		out = append(out, text)
		return nil
	}

	for addr := range w.h.Old().Objects(model.SizeOf) {
		if err := add(addr); err != nil {
			return nil, err
		}
	}
	for addr := range w.h.Large().Objects() {
		if err := add(addr); err != nil {
			return nil, err
		}
	}
	for addr := range w.h.Young().Objects(model.SizeOf) {
		if err := add(addr); err != nil {
			return nil, err
		}
	}
	return out, nil
}
