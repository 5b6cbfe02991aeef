// Package header implements the two-word prefix carried by every heap
// object and the protocol the collector runs on it.
//
// # Layout
//
//	+0  class word       class descriptor, forward, or forward-failed
//	+8  relocation word  mark bit (bit 0) | relocation address
//
// # Class word
//
// The class word is a tagged union (ClassWord) with three states:
//
//	StateClass          cls          plain class descriptor address
//	StateForwarded      dest | 0b01  object was copied to dest
//	StateForwardFailed  cls  | 0b11  an evacuation attempt failed
//
// Only two transitions are performed atomically, both out of StateClass:
// TryInstallForward and MarkForwardFailed. The loser of a race learns the
// winner's outcome from the return value instead of retrying. After a
// cycle RepairClassPointer returns every surviving header to StateClass.
//
// # Relocation word
//
// The relocation word carries the mark bit used by the tracer and the
// relocation address computed by old-generation compaction. TryMark is
// the only atomic operation; the rest are for single-threaded phases.
//
// # Consistency
//
// States the protocol declares impossible panic with *ConsistencyError.
// They indicate a collector defect and are never recovered.
package header
