// Package arena provisions raw memory regions for buddy.Allocator.
//
// The allocator itself adopts any caller-provided bytes; this package
// covers the two usual sources. Heap carves a region out of the Go heap
// without paying for zeroing, and on unix platforms Map obtains a
// page-aligned anonymous mapping that lives outside the heap entirely.
package arena

import "github.com/bytedance/gopkg/lang/dirtmake"

// Heap returns a size-byte heap-backed region. The bytes are not
// zeroed: the allocator overwrites its bookkeeping during construction
// and hands out blocks with undefined contents anyway.
func Heap(size int) []byte {
	return dirtmake.Bytes(size, size)
}
