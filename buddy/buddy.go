// Package buddy implements a binary buddy allocator over a single
// caller-provided memory region.
//
// The region is modelled as a complete binary tree of blocks: the root
// covers the whole logical region, every split halves a block into two
// buddies, and leaves are LeafSize bytes. All bookkeeping (one
// intrusive free list per level, a split bitmap and a free-pair bitmap)
// lives inside the managed region itself, so the allocator performs no
// dynamic allocation of its own. Free blocks carry their list links
// in-band, which means the caller must not touch memory it has not been
// handed by Allocate.
//
// The allocator is not safe for concurrent use; callers share it across
// goroutines only under external locking.
package buddy

import (
	"errors"
	"unsafe"

	"github.com/StiliyanDr/allocator/container/bitmap"
	"github.com/StiliyanDr/allocator/internal/arith"
	"github.com/StiliyanDr/allocator/internal/freelist"
)

const (
	// LeafSize is the minimum block size in bytes.
	LeafSize = 128

	// Alignment is the alignment of every pointer returned by Allocate,
	// the strictest fundamental alignment of 64-bit platforms.
	Alignment = 16

	// minLevels is the smallest usable tree: a root and two leaves.
	minLevels = 2

	headSize = int(unsafe.Sizeof(freelist.List{}))
)

var (
	// ErrNilMemory is returned by New for a nil region.
	ErrNilMemory = errors.New("buddy: nil memory region")

	// ErrInsufficientMemory is returned by New when the region cannot
	// hold at least two leaf levels plus the allocator's bookkeeping.
	ErrInsufficientMemory = errors.New("buddy: insufficient memory")
)

// Allocator manages a caller-provided memory region. The zero value
// manages no memory and all of its operations are safe no-ops.
//
// An Allocator must not be copied: copies alias the same region and
// corrupt its bookkeeping. Use Move to transfer ownership.
type Allocator struct {
	// mem is the caller's region; it keeps the backing alive.
	mem []byte

	// arenaStart is a cached pointer to the first byte of mem, the
	// provenance for every pointer the allocator derives.
	arenaStart unsafe.Pointer

	// start is the logical region start. When the usable size is not a
	// power of two the logical region is padded at the front, so start
	// may lie below the first real byte; the padding leaves are
	// pre-allocated and never handed out.
	start uintptr

	// size is the logical region size, a power of two.
	size int

	// levels is the tree height; leaves live at level levels-1.
	levels int

	// lists holds one free list per level, carved out of the region.
	lists []freelist.List

	// splitMap has one bit per internal node: set while the node's two
	// children are used independently.
	splitMap bitmap.BitMap

	// pairMap has one bit per buddy pair: set while exactly one of the
	// two siblings is free. Flipped on every free transition of either
	// sibling, it answers "is my buddy free?" in O(1) at deallocation.
	pairMap bitmap.BitMap
}

// New builds an allocator over the given region. The region is adopted
// as-is: its start is aligned up to Alignment, its tail trimmed to a
// multiple of LeafSize, and the allocator's bookkeeping is carved from
// the trimmed tail when it fits there, otherwise from the region head.
//
// New returns ErrNilMemory for a nil region and ErrInsufficientMemory
// when fewer than two leaf levels remain after alignment or the
// bookkeeping does not fit.
func New(memory []byte) (*Allocator, error) {
	if memory == nil {
		return nil, ErrNilMemory
	}
	if len(memory) < LeafSize {
		return nil, ErrInsufficientMemory
	}

	base := unsafe.Pointer(unsafe.SliceData(memory))
	raw := uintptr(base)
	aligned := (raw + Alignment - 1) &^ (Alignment - 1)
	padding := int(aligned - raw)
	if len(memory)-padding < LeafSize {
		return nil, ErrInsufficientMemory
	}

	usable := (len(memory) - padding) / LeafSize * LeafSize
	wasteTail := len(memory) - padding - usable

	size := arith.NextPowerOfTwo(usable)
	levels := arith.Log2Floor(size/LeafSize) + 1
	if levels < minLevels {
		return nil, ErrInsufficientMemory
	}

	a := &Allocator{
		mem:        memory,
		arenaStart: base,
		start:      aligned - uintptr(size-usable),
		size:       size,
		levels:     levels,
	}

	splitBits := 1<<(levels-1) - 1
	pairBits := 1 << (levels - 1)
	bookkeeping := levels*headSize +
		arith.SizeInBytes(splitBits) + arith.SizeInBytes(pairBits)

	// Prefer the tail waste for the bookkeeping; the head of the usable
	// region is the fallback, and the leaves covering it are then lost
	// to pre-allocation.
	offset, atHead := padding+usable, false
	if bookkeeping > wasteTail {
		if bookkeeping > usable {
			return nil, ErrInsufficientMemory
		}
		offset, atHead = padding, true
	}

	a.lists = unsafe.Slice((*freelist.List)(unsafe.Add(base, offset)), levels)
	for i := range a.lists {
		a.lists[i] = freelist.List{}
	}
	offset += levels * headSize
	a.splitMap = bitmap.New(memory[offset:], splitBits, false)
	offset += arith.SizeInBytes(splitBits)
	a.pairMap = bitmap.New(memory[offset:], pairBits, false)
	offset += arith.SizeInBytes(pairBits)

	// The root starts out as the single free block of a pair whose other
	// half lies outside the region.
	a.pairMap.Flip(0)

	firstFree := aligned
	if atHead {
		firstFree += uintptr(bookkeeping)
	}
	a.preallocate(arith.BlocksFitting(int(firstFree-a.start), LeafSize))

	return a, nil
}

// preallocate marks the first count leaves, and every ancestor
// containing them, as permanently allocated. They cover the front
// padding of the logical region and any bookkeeping placed at the
// region head. The free remainder enters the free lists as the chain of
// right children hanging off the split spine.
func (a *Allocator) preallocate(count int) {
	if count == 0 {
		a.lists[0].Insert(a.pointerTo(a.start))
		return
	}

	bottom := a.levels - 1
	last := arith.FirstIndexAt(bottom) + count - 1
	for i := arith.FirstIndexAt(bottom); i <= last; i++ {
		if arith.ToLevelIndex(i, bottom)&1 == 0 {
			a.pairMap.Flip(pairIndexFor(i))
		}
	}

	for level := bottom - 1; level >= 0; level-- {
		ancestor := arith.ParentOf(last)
		for i := arith.FirstIndexAt(level); i <= ancestor; i++ {
			a.splitMap.Flip(i)
		}
		if arith.ToLevelIndex(ancestor, level)&1 == 0 {
			a.pairMap.Flip(pairIndexFor(ancestor))
		}
		if right := arith.RightChildOf(ancestor); right > last {
			a.lists[level+1].Insert(a.pointerTo(a.addressOf(right, level+1)))
		}
		last = ancestor
	}
}

// ManagesMemory reports whether the allocator owns a region.
func (a *Allocator) ManagesMemory() bool {
	return a.lists != nil
}

// TotalSize returns the logical region size in bytes, zero for an
// allocator that manages no memory.
func (a *Allocator) TotalSize() int {
	return a.size
}

// Move returns the allocator's state and leaves the receiver managing
// no memory. It is the ownership-transfer analog for a type that must
// not be copied.
func (a *Allocator) Move() Allocator {
	moved := *a
	*a = Allocator{}
	return moved
}

// Allocate returns a block of at least size bytes, aligned to
// Alignment, or nil when size is zero, exceeds the region, or no free
// block remains. The block stays valid until passed to Deallocate.
func (a *Allocator) Allocate(size int) unsafe.Pointer {
	if !a.ManagesMemory() || size <= 0 || size > a.size {
		return nil
	}
	return a.allocateAt(a.levelFor(size))
}

// AllocateBytes is Allocate returning the block as a byte slice of
// length and capacity size. Pass the same slice to DeallocateBytes.
func (a *Allocator) AllocateBytes(size int) []byte {
	block := a.Allocate(size)
	if block == nil {
		return nil
	}
	return unsafe.Slice((*byte)(block), size)
}

func (a *Allocator) allocateAt(level int) unsafe.Pointer {
	if !a.lists[level].IsEmpty() {
		return a.takeFrom(level)
	}
	if level == 0 {
		return nil
	}

	parent := a.allocateAt(level - 1)
	if parent == nil {
		return nil
	}
	a.splitMap.Flip(a.indexFor(parent, level-1))
	freelist.InsertPair(&a.lists[level],
		parent, unsafe.Add(parent, a.sizeAt(level)))

	return a.takeFrom(level)
}

func (a *Allocator) takeFrom(level int) unsafe.Pointer {
	block := a.lists[level].Extract()
	a.pairMap.Flip(pairIndexFor(a.indexFor(block, level)))
	return block
}

// Deallocate returns a block obtained from Allocate. The block's size
// is recovered from the split bitmap by walking from its leaf towards
// the first split ancestor. Deallocating nil is a no-op.
func (a *Allocator) Deallocate(block unsafe.Pointer) {
	if !a.ManagesMemory() || block == nil {
		return
	}
	level, index := a.levelOf(block)
	a.free(block, level, index)
}

// DeallocateSized is Deallocate for callers that still know the size
// they requested; it skips the level recovery walk.
func (a *Allocator) DeallocateSized(block unsafe.Pointer, size int) {
	if !a.ManagesMemory() || block == nil {
		return
	}
	level := a.levelFor(size)
	a.free(block, level, a.indexFor(block, level))
}

// DeallocateBytes returns a slice obtained from AllocateBytes. The
// slice must not have been resliced from the front.
func (a *Allocator) DeallocateBytes(block []byte) {
	if cap(block) == 0 {
		return
	}
	a.Deallocate(unsafe.Pointer(unsafe.SliceData(block)))
}

// free releases the block at the given level and heap index, merging
// with its buddy and ascending while the buddy is free.
func (a *Allocator) free(block unsafe.Pointer, level, index int) {
	for {
		pairIndex := pairIndexFor(index)
		buddyIsFree := index > 0 && a.pairMap.At(pairIndex)
		a.pairMap.Flip(pairIndex)

		if !buddyIsFree {
			a.lists[level].Insert(block)
			return
		}

		buddy := arith.BuddyOf(index)
		a.lists[level].Remove(a.pointerTo(a.addressOf(buddy, level)))
		index = arith.ParentOf(index)
		a.splitMap.Flip(index)
		level--
		block = a.pointerTo(a.addressOf(index, level))
	}
}

// levelOf recovers the level a block was allocated at: walking up from
// its leaf, the block belongs to the first ancestor whose parent is
// split, or to the root when no such ancestor exists.
func (a *Allocator) levelOf(block unsafe.Pointer) (int, int) {
	level := a.levels - 1
	index := a.indexFor(block, level)
	for index > 0 && !a.splitMap.At(arith.ParentOf(index)) {
		index = arith.ParentOf(index)
		level--
	}
	return level, index
}

// levelFor maps a requested size to the level of the smallest block
// that fits it.
func (a *Allocator) levelFor(size int) int {
	if size <= LeafSize {
		return a.levels - 1
	}
	return arith.Log2Floor(a.size / arith.NextPowerOfTwo(size))
}

func (a *Allocator) sizeAt(level int) int {
	return a.size >> level
}

func (a *Allocator) addressOf(index, level int) uintptr {
	return a.start + uintptr(arith.ToLevelIndex(index, level)*a.sizeAt(level))
}

func (a *Allocator) indexFor(block unsafe.Pointer, level int) int {
	offset := int(uintptr(block) - a.start)
	return arith.FirstIndexAt(level) + offset/a.sizeAt(level)
}

// pointerTo rebases a logical address onto the region's provenance.
func (a *Allocator) pointerTo(address uintptr) unsafe.Pointer {
	return unsafe.Add(a.arenaStart, int(address-uintptr(a.arenaStart)))
}

// pairIndexFor returns the free-pair bit shared by the block at the
// given heap index and its buddy.
func pairIndexFor(index int) int {
	return (index + index&1) / 2
}
