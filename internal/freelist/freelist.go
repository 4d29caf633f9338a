// Package freelist implements an intrusive doubly linked list whose
// nodes live inside the listed blocks themselves: a free block's first
// two pointer-sized words hold the prev and next links.
//
// A List is a single head word, so an array of lists can be carved
// directly out of a managed memory region with unsafe.Slice. Callers
// guarantee that inserted blocks are pointer-aligned, at least two words
// long, and in at most one list at a time; violations corrupt memory.
package freelist

import "unsafe"

// node is the link view written into a free block.
type node struct {
	prev unsafe.Pointer
	next unsafe.Pointer
}

// NodeSize is the minimum block size a list can link.
const NodeSize = int(unsafe.Sizeof(node{}))

func viewOf(block unsafe.Pointer) *node {
	return (*node)(block)
}

// List is a head-only intrusive list. The zero value is an empty list.
type List struct {
	first unsafe.Pointer
}

// IsEmpty reports whether the list holds no blocks.
func (l *List) IsEmpty() bool {
	return l.first == nil
}

// Insert pushes block to the front of the list.
func (l *List) Insert(block unsafe.Pointer) {
	n := viewOf(block)
	n.prev = nil
	n.next = l.first
	if l.first != nil {
		viewOf(l.first).prev = block
	}
	l.first = block
}

// Remove unlinks block, which must currently be in the list.
func (l *List) Remove(block unsafe.Pointer) {
	if l.IsEmpty() {
		panic("freelist: remove from empty list")
	}
	n := viewOf(block)
	if n.prev != nil {
		viewOf(n.prev).next = n.next
	} else {
		l.first = n.next
	}
	if n.next != nil {
		viewOf(n.next).prev = n.prev
	}
}

// Extract pops and returns the front block. The list must be non-empty.
func (l *List) Extract() unsafe.Pointer {
	if l.IsEmpty() {
		panic("freelist: extract from empty list")
	}
	first := l.first
	l.Remove(first)
	return first
}

// Size walks the chain and returns the number of blocks. O(n), meant
// for tests and diagnostics only.
func (l *List) Size() int {
	size := 0
	for current := l.first; current != nil; current = viewOf(current).next {
		size++
	}
	return size
}

// InsertPair pushes two blocks, first then second, leaving second at
// the front. Used when a split turns one block into two buddies.
func InsertPair(l *List, first, second unsafe.Pointer) {
	l.Insert(first)
	l.Insert(second)
}
