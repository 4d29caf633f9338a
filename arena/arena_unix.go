//go:build unix

package arena

import "golang.org/x/sys/unix"

// Map returns a size-byte anonymous private mapping. The region is
// page-aligned, zero-filled by the kernel, and invisible to the Go
// garbage collector; release it with Unmap.
func Map(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
}

// Unmap releases a region obtained from Map. The region, and every
// block an allocator handed out of it, must no longer be referenced.
func Unmap(region []byte) error {
	return unix.Munmap(region)
}
