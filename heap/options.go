package heap

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/joshuapare/swiper/heap/collect"
	"github.com/joshuapare/swiper/heap/root"
	"github.com/joshuapare/swiper/internal/logger"
)

// traceGC enables debug logging of every collection when the heap is
// created without an explicit logger. Controlled by SWIPER_GC_TRACE.
var traceGC = os.Getenv("SWIPER_GC_TRACE") != ""

// Options configures a Heap. Sizes are rounded up to whole pages.
type Options struct {
	PermSize  uint64 // Permanent space (class descriptors, interned strings, globals)
	YoungSize uint64 // Nursery
	OldSize   uint64 // Tenured generation
	LargeSize uint64 // Large object space

	// MinHeapSize and MaxHeapSize bound the collected heap: young, old
	// and large together. A heap below MinHeapSize gets the difference
	// added to the old generation; one above MaxHeapSize is rejected.
	// Zero means unbounded.
	MinHeapSize uint64
	MaxHeapSize uint64

	// LargeThreshold is the object size from which allocation and
	// evacuation use the large object space.
	LargeThreshold uint64

	// Workers is the number of goroutines used by parallel collector
	// phases.
	Workers int

	// Verify runs the heap verifier before and after every cycle.
	Verify bool

	// Roots returns the runtime's root slots. Handles and globals are
	// always roots in addition.
	Roots root.Provider

	// Abort is called with fatal errors: out of memory and collector
	// failures. Defaults to logging the error and exiting with status 2.
	Abort func(error)

	// Logger receives collector logs. Defaults to logger.L, or a debug
	// logger on stderr when SWIPER_GC_TRACE is set.
	Logger *slog.Logger
}

// DefaultOptions returns the default heap configuration.
func DefaultOptions() *Options {
	return &Options{
		PermSize:       1 << 20,
		YoungSize:      4 << 20,
		OldSize:        16 << 20,
		LargeSize:      16 << 20,
		LargeThreshold: collect.DefaultLargeThreshold,
		Workers:        runtime.GOMAXPROCS(0),
	}
}

func (o *Options) withDefaults() Options {
	out := *DefaultOptions()
	if o == nil {
		o = &Options{}
	}
	if o.PermSize != 0 {
		out.PermSize = o.PermSize
	}
	if o.YoungSize != 0 {
		out.YoungSize = o.YoungSize
	}
	if o.OldSize != 0 {
		out.OldSize = o.OldSize
	}
	if o.LargeSize != 0 {
		out.LargeSize = o.LargeSize
	}
	if o.LargeThreshold != 0 {
		out.LargeThreshold = o.LargeThreshold
	}
	if o.Workers > 0 {
		out.Workers = o.Workers
	}
	out.MinHeapSize = o.MinHeapSize
	out.MaxHeapSize = o.MaxHeapSize
	out.Verify = o.Verify
	out.Roots = o.Roots
	out.Abort = o.Abort
	out.Logger = o.Logger

	if out.Logger == nil {
		out.Logger = logger.L
		if traceGC {
			out.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	}
	if out.Abort == nil {
		log := out.Logger
		out.Abort = func(err error) {
			log.Error("heap: fatal", "error", err)
			fmt.Fprintf(os.Stderr, "swiper: fatal: %v\n", err)
			os.Exit(2)
		}
	}
	return out
}
