package heap

import "errors"

var (
	// ErrPermReference indicates a store of a non-permanent reference into
	// a permanent object.
	ErrPermReference = errors.New("heap: permanent objects may only reference permanent objects")

	// ErrWrongKind indicates a class of the wrong kind for the operation.
	ErrWrongKind = errors.New("heap: wrong class kind")

	// ErrHeapSize indicates space sizes outside MinHeapSize and
	// MaxHeapSize.
	ErrHeapSize = errors.New("heap: heap size out of bounds")
)
