package collect

import (
	"errors"
	"fmt"
	"time"

	"github.com/joshuapare/swiper/internal/mem"
)

// ErrOutOfMemory indicates that the survivors of a cycle do not fit in the
// heap.
var ErrOutOfMemory = errors.New("collect: out of memory")

// Reason is why a cycle was started.
type Reason uint8

const (
	ReasonAllocFailure Reason = iota + 1 // young allocation failed
	ReasonLargeFailure                   // large object allocation failed
	ReasonExplicit                       // requested by the runtime
)

func (r Reason) String() string {
	switch r {
	case ReasonAllocFailure:
		return "AllocFailure"
	case ReasonLargeFailure:
		return "LargeFailure"
	case ReasonExplicit:
		return "Explicit"
	default:
		return fmt.Sprintf("Reason(%d)", uint8(r))
	}
}

// State is the phase a collector is in.
type State uint32

const (
	StateIdle State = iota
	StateMarkLive
	StateEvacuateYoung
	StateSweepCompactOld
	StateRepair
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateMarkLive:
		return "MarkLive"
	case StateEvacuateYoung:
		return "EvacuateYoung"
	case StateSweepCompactOld:
		return "SweepCompactOld"
	case StateRepair:
		return "Repair"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Result describes a finished cycle.
type Result struct {
	Reason   Reason
	Duration time.Duration

	Marked      uint64 // objects reachable at cycle start
	MarkedBytes uint64

	Evacuated      uint64 // young objects copied during evacuation
	EvacuatedBytes uint64
	Promoted       uint64 // young survivors now tenured, evacuated or retried
	Retried        uint64 // young objects placed after a failed evacuation

	Reclaimed  uint64 // bytes of dead objects in all spaces
	OldBefore  uint64 // old generation bytes in use at cycle start
	OldAfter   uint64
	LargeFreed uint64 // large objects freed

	OldTop mem.Address // old generation top after compaction
}
