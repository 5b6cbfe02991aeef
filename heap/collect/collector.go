package collect

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshuapare/swiper/heap/card"
	"github.com/joshuapare/swiper/heap/crossing"
	"github.com/joshuapare/swiper/heap/layout"
	"github.com/joshuapare/swiper/heap/root"
	"github.com/joshuapare/swiper/heap/space"
	"github.com/joshuapare/swiper/internal/logger"
	"github.com/joshuapare/swiper/internal/mem"
)

// DefaultLargeThreshold is the object size from which evacuation targets
// the large object space.
const DefaultLargeThreshold = 16 << 10

// Spaces is the heap the collector works on. Young, Old and Large must be
// laid out in that address order without gaps; Perm lies below Young.
type Spaces struct {
	Arena *mem.Arena
	Model *layout.Model
	Young *space.Young
	Old   *space.Old
	Large *space.Large
	Perm  *space.Perm
	Cards *card.Table
}

// Options configures a Collector.
type Options struct {
	// Workers is the number of goroutines used by parallel phases.
	// Defaults to GOMAXPROCS.
	Workers int

	// LargeThreshold is the size from which survivors are evacuated into
	// the large object space. Defaults to DefaultLargeThreshold.
	LargeThreshold uint64

	// Logger receives phase transitions and cycle summaries. Defaults to
	// logger.L.
	Logger *slog.Logger
}

// Collector runs full collection cycles over a heap.
type Collector struct {
	s    Spaces
	opts Options
	log  *slog.Logger

	heap mem.Region // young start to large end

	mu    sync.Mutex
	state atomic.Uint32
}

// New returns a collector over s.
func New(s Spaces, opts Options) (*Collector, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.LargeThreshold == 0 {
		opts.LargeThreshold = DefaultLargeThreshold
	}
	log := opts.Logger
	if log == nil {
		log = logger.L
	}

	young, old, large := s.Young.Region(), s.Old.Region(), s.Large.Region()
	if young.End != old.Start || old.End != large.Start {
		return nil, fmt.Errorf("collect: spaces are not contiguous: young %v old %v large %v", young, old, large)
	}
	if s.Cards.Region() != old {
		return nil, fmt.Errorf("collect: card table covers %v, old generation is %v", s.Cards.Region(), old)
	}
	return &Collector{
		s:    s,
		opts: opts,
		log:  log,
		heap: mem.Region{Start: young.Start, End: large.End},
	}, nil
}

// State returns the current phase.
func (c *Collector) State() State { return State(c.state.Load()) }

// HeapRegion returns the collected address range: young, old and large.
func (c *Collector) HeapRegion() mem.Region { return c.heap }

// Collect runs one full cycle with roots as the root set. Every root is
// rewritten to the final address of its referent. The cycle is not
// cancelled by ctx once it has started.
func (c *Collector) Collect(ctx context.Context, reason Reason, roots []root.Slot) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Old.Lock()
	defer c.s.Old.Unlock()
	defer c.setState(StateIdle)

	cy := &cycle{
		Collector: c,
		ctx:       context.WithoutCancel(ctx),
		roots:     roots,
		res:       Result{Reason: reason},
	}
	start := time.Now()
	cy.res.OldBefore = c.s.Old.Used()
	youngUsed := c.s.Young.Used()

	c.log.Debug("gc: cycle start", "reason", reason, "young", youngUsed, "old", cy.res.OldBefore, "large", c.s.Large.Used())

	for _, phase := range []struct {
		state State
		run   func() error
	}{
		{StateMarkLive, cy.markLive},
		{StateEvacuateYoung, cy.evacuateYoung},
		{StateSweepCompactOld, cy.sweepCompactOld},
		{StateRepair, cy.repair},
	} {
		c.setState(phase.state)
		if err := phase.run(); err != nil {
			c.log.Error("gc: cycle failed", "phase", phase.state, "reason", reason, "error", err)
			return cy.res, err
		}
	}

	cy.res.Reclaimed += youngUsed - cy.youngLive
	cy.res.OldAfter = c.s.Old.Used()
	cy.res.OldTop = c.s.Old.Top()
	cy.res.Duration = time.Since(start)

	c.log.Info("gc: cycle done",
		"reason", reason,
		"duration", cy.res.Duration,
		"marked", cy.res.Marked,
		"promoted", cy.res.Promoted,
		"retried", cy.res.Retried,
		"reclaimed", cy.res.Reclaimed,
		"old_before", cy.res.OldBefore,
		"old_after", cy.res.OldAfter,
		"large_freed", cy.res.LargeFreed,
	)
	return cy.res, nil
}

func (c *Collector) setState(s State) {
	if old := State(c.state.Swap(uint32(s))); old != s {
		c.log.Debug("gc: phase", "from", old, "to", s)
	}
}

// move is one object relocation planned during a cycle.
type move struct {
	src  mem.Address
	dest mem.Address
	size uint64
	cls  mem.Address
	refs bool
}

// cycle holds the state of one collection.
type cycle struct {
	*Collector
	ctx   context.Context
	roots []root.Slot
	res   Result

	evacuated []move        // young to old or large, copied in EvacuateYoung
	failed    []mem.Address // young objects carrying the failure sentinel
	survivors []move        // old objects in address order
	retried   []move        // failed young objects and their final place
	large     []mem.Address // live large objects
	scratch   *crossing.Map // crossing map of the compacted old generation
	newTop    mem.Address
	youngLive uint64
}
