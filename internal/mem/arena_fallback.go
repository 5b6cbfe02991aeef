//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package mem

import "unsafe"

// mapAnon allocates the arena on the Go heap when mmap is not available.
// The backing store is a []uint64 so word views are always aligned.
func mapAnon(size int) ([]byte, func([]byte) error, error) {
	words := make([]uint64, size/PtrSize)
	data := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
	return data, func([]byte) error { return nil }, nil
}
