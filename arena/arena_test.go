package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StiliyanDr/allocator/buddy"
)

func TestHeap(t *testing.T) {
	region := Heap(64 * 1024)

	require.Equal(t, 64*1024, len(region))
	assert.Equal(t, 64*1024, cap(region))

	// Undefined contents must still be writable everywhere.
	for i := range region {
		region[i] = byte(i)
	}
}

func TestHeapBacksAnAllocator(t *testing.T) {
	a, err := buddy.New(Heap(64 * 1024))
	require.NoError(t, err)

	p := a.Allocate(1024)
	require.NotNil(t, p)
	a.Deallocate(p)
}
