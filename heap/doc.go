// Package heap is the managed heap of the runtime: one arena split into
// permanent, young, old and large object spaces, a card table and crossing
// map over the old generation, and the full collector.
//
// # Usage
//
//	h, err := heap.New(nil)
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	node, _ := h.Classes().DefineFixed("Node", 32, 16, 24)
//	scope := h.Handles()
//	scope.Push()
//	defer scope.Pop()
//
//	a, _ := h.NewObject(node)
//	ra := scope.New(a)
//	b, _ := h.NewObject(node)
//	h.StoreRef(ra.Get(), 16, b)
//
// Addresses move during collection. Anything the mutator keeps across an
// allocation must live in a root: a handle, a global or a slot returned by
// the Roots provider.
//
// # Write Barrier
//
// Reference stores into heap objects must go through StoreRef or
// StoreElem, which dirty the card of the slot when it lies in the old
// generation.
//
// # Failure
//
// Allocation that still fails after a collection, and any collector
// failure, is fatal: Options.Abort is called, which by default logs the
// error and exits the process. Impossible header states panic with
// *header.ConsistencyError.
//
// # Thread Safety
//
// A Heap serves a single mutator goroutine. The collector itself runs its
// phases in parallel.
package heap
