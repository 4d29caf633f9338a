// Package arith holds the integer arithmetic behind the buddy allocator:
// power-of-two rounding and the index math of a complete binary tree
// stored in heap order (root at 0, children of i at 2i+1 and 2i+2).
//
// Inputs outside the documented domains are programming errors; the
// functions do not validate them.
package arith

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= x. x must be >= 1.
func NextPowerOfTwo(x int) int {
	return 1 << bits.Len(uint(x-1))
}

// Log2Floor returns the index of the highest set bit of x. x must be >= 1.
func Log2Floor(x int) int {
	return bits.Len(uint(x)) - 1
}

// BlocksFitting returns how many blocks of blockSize are needed to cover
// units, i.e. ceil(units / blockSize). blockSize must be > 0.
func BlocksFitting(units, blockSize int) int {
	return (units + blockSize - 1) / blockSize
}

// SizeInBytes returns the number of bytes needed to store sizeInBits bits.
func SizeInBytes(sizeInBits int) int {
	return BlocksFitting(sizeInBits, 8)
}

// FirstIndexAt returns the heap index of the leftmost node at the given
// tree level. Level 0 is the root.
func FirstIndexAt(level int) int {
	return 1<<level - 1
}

// ParentOf returns the heap index of the parent of node i. i must be > 0.
func ParentOf(i int) int {
	return (i - 1) / 2
}

// RightChildOf returns the heap index of the right child of node i.
func RightChildOf(i int) int {
	return 2*i + 2
}

// BuddyOf returns the heap index of the sibling sharing i's parent.
// i must be > 0; the root has no buddy.
func BuddyOf(i int) int {
	if i&1 == 0 {
		return i - 1
	}
	return i + 1
}

// ToLevelIndex converts the heap index i of a node at the given level to
// its position within that level, counting from 0.
func ToLevelIndex(i, level int) int {
	return i - FirstIndexAt(level)
}
