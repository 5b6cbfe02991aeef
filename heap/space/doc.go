// Package space implements the four heap spaces.
//
// # Spaces
//
//   - Young: bump allocation; survivors are evacuated, the space is then
//     reset wholesale and its pages handed back to the operating system.
//   - Old: bump allocation with crossing map recording; compacted in place.
//   - Large: page-granular objects from a first-fit free extent list.
//     Objects are allocated and freed one by one and never move.
//   - Perm: bump allocation, never collected. Holds class descriptors and
//     interned strings.
//
// Bump spaces are walkable: objects are contiguous from the region start
// to the top, so Objects can visit them in address order given a size
// function.
//
// # Thread Safety
//
// Bump allocation is lock-free. Old generation metadata (the crossing map
// and the top after compaction) is guarded by the Old lock, which callers
// take around Alloc and which the collector holds for a whole cycle. Large
// guards its free list internally.
package space
