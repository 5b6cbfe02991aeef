// Package card provides the card table of the old generation.
//
// # Overview
//
// The old generation is divided into 512 byte cards. The table holds one
// byte per card recording whether any reference slot inside the card may
// have been written to point into the young generation since the card was
// last cleaned. The collector uses dirty cards to find old-to-young
// references without scanning the whole old generation.
//
// # Write Barrier
//
// MarkDirty is the mutator write barrier. It is a single byte store with
// no read and no lock, so marking is idempotent and racing barriers on
// the same card are harmless:
//
//	table.MarkDirty(slot)
//
// Stores to slots outside the old generation are ignored.
//
// # Iteration
//
//	for i := range table.DirtyCards() {
//	    start := table.CardStart(i)
//	    // scan [start, start+card.Size)
//	}
//
//	for _, r := range table.DirtyRanges() {
//	    // r covers one or more adjacent dirty cards
//	}
//
// # Thread Safety
//
// MarkDirty may be called concurrently by mutators. Clear, ClearAll and
// iteration are only safe while no barrier runs, which the collector
// guarantees by holding the old generation lock for the whole cycle.
package card
