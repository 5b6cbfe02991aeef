// Package collect implements the full generational collection cycle.
//
// # Phases
//
//	Idle → MarkLive → EvacuateYoung → SweepCompactOld → Repair → Idle
//
// MarkLive marks everything reachable from the roots. EvacuateYoung
// copies marked young objects into the old generation, or into the large
// object space when they are at least LargeThreshold bytes, leaving a
// forward in each young header. SweepCompactOld assigns every marked old
// object its compacted address, frees dead large objects and finds room
// in the compacted tail for young objects whose evacuation failed.
// Repair rewrites every root and every slot of every survivor, slides the
// old generation down, copies the retried young objects into place and
// resets the young generation.
//
// # Failure
//
// A young object that cannot be evacuated carries the failure sentinel
// until SweepCompactOld retries it. If it still does not fit the cycle
// returns ErrOutOfMemory. The heap is left mid-cycle in that case and the
// caller must treat the error as fatal.
//
// Impossible header states panic with *header.ConsistencyError.
//
// # Concurrency
//
// One cycle runs at a time and the old generation lock is held
// throughout. Marking, evacuation copies and slot repair run on
// Options.Workers goroutines with a barrier between phases. Destination
// reservation, compaction sliding and card table updates are serial.
package collect
