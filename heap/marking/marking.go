// Package marking implements parallel transitive marking.
//
// Every root is marked first on the calling goroutine. Workers then drain
// a shared work pool: each keeps a local stack of objects to trace, marks
// every referent with header.TryMark and pushes only the objects it won.
// A worker whose local stack grows past a threshold hands half of it back
// to the pool for idle workers to pick up. Marking terminates when every
// worker is idle and the pool is empty.
package marking

import (
	"context"
	"sync"

	"github.com/joshuapare/swiper/heap/header"
	"github.com/joshuapare/swiper/heap/layout"
	"github.com/joshuapare/swiper/heap/root"
	"github.com/joshuapare/swiper/internal/mem"
	"github.com/joshuapare/swiper/internal/parallel"
)

const (
	// batchSize is the number of objects a worker takes from the pool.
	batchSize = 64

	// shareThreshold is the local stack depth above which a worker
	// publishes half of its stack.
	shareThreshold = 256
)

// Stats summarises a marking pass.
type Stats struct {
	Marked uint64 // objects marked
	Bytes  uint64 // total size of marked objects
}

// Start marks every object reachable from roots. Only addresses inside
// heap are marked and traced; references to permanent space are ignored.
func Start(ctx context.Context, roots []root.Slot, model *layout.Model, heap mem.Region, workers int) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	workers = max(workers, 1)
	arena := model.Arena()

	p := newPool(workers)
	var initial []mem.Address
	for _, r := range roots {
		if v := r.Get(); heap.Contains(v) && header.At(arena, v).TryMark() {
			initial = append(initial, v)
		}
	}
	p.put(initial)

	stats := make([]Stats, workers)
	err := parallel.Run(ctx, workers, func(_ context.Context, id int) error {
		w := &worker{pool: p, model: model, arena: arena, heap: heap}
		defer func() {
			if r := recover(); r != nil {
				p.abort()
				panic(r)
			}
		}()
		w.run()
		stats[id] = w.stats
		return nil
	})

	var total Stats
	for _, s := range stats {
		total.Marked += s.Marked
		total.Bytes += s.Bytes
	}
	return total, err
}

type worker struct {
	pool  *pool
	model *layout.Model
	arena *mem.Arena
	heap  mem.Region
	local []mem.Address
	stats Stats
}

func (w *worker) run() {
	for {
		if len(w.local) == 0 {
			w.local = w.pool.get(w.local, batchSize)
			if len(w.local) == 0 {
				return
			}
		}
		n := len(w.local) - 1
		obj := w.local[n]
		w.local = w.local[:n]
		w.trace(obj)

		if len(w.local) > shareThreshold {
			half := len(w.local) / 2
			w.pool.put(w.local[half:])
			w.local = w.local[:half]
		}
	}
}

func (w *worker) trace(obj mem.Address) {
	w.stats.Marked++
	w.stats.Bytes += w.model.SizeOf(obj)
	w.model.ForEachReferenceField(obj, func(slot mem.Address) {
		v := w.arena.Load(slot)
		if w.heap.Contains(v) && header.At(w.arena, v).TryMark() {
			w.local = append(w.local, v)
		}
	})
}

// pool is the shared work list.
type pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	work    []mem.Address
	workers int
	idle    int
	done    bool
}

func newPool(workers int) *pool {
	p := &pool{workers: workers}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pool) put(objs []mem.Address) {
	if len(objs) == 0 {
		return
	}
	p.mu.Lock()
	p.work = append(p.work, objs...)
	p.mu.Unlock()
	p.cond.Broadcast()
}

// get appends up to n objects to buf, blocking while the pool is empty
// and other workers may still produce work. It returns buf unchanged once
// marking has terminated.
func (p *pool) get(buf []mem.Address, n int) []mem.Address {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.idle++
	for len(p.work) == 0 {
		if p.done {
			return buf
		}
		if p.idle == p.workers {
			p.done = true
			p.cond.Broadcast()
			return buf
		}
		p.cond.Wait()
	}
	p.idle--

	take := min(n, len(p.work))
	rest := len(p.work) - take
	buf = append(buf, p.work[rest:]...)
	p.work = p.work[:rest]
	return buf
}

func (p *pool) abort() {
	p.mu.Lock()
	p.done = true
	p.work = nil
	p.mu.Unlock()
	p.cond.Broadcast()
}
