//go:build linux

package mem

import "golang.org/x/sys/unix"

// releasePages drops the backing pages of b. Private anonymous mappings
// read back as zero after MADV_DONTNEED.
func releasePages(b []byte) error {
	return unix.Madvise(b, unix.MADV_DONTNEED)
}
