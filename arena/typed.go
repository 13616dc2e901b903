package arena

import (
	"math"
	"unsafe"

	"github.com/quillgfx/gfxmem"
)

// New allocates a zeroed T from the arena. The value needs no teardown: use
// NewWithCleanup for types that hold resources.
func New[T any](a *Arena) *T {
	var zero T
	return (*T)(a.Alloc(int(unsafe.Sizeof(zero)), uint(unsafe.Alignof(zero))))
}

// NewWithCleanup allocates a zeroed T from the arena and registers cleanup to
// run for it when the arena is destroyed or reset. Cleanups run in reverse
// allocation order, each exactly once.
func NewWithCleanup[T any](a *Arena, cleanup func(*T)) *T {
	var zero T
	ptr := a.AllocWithCleanup(int(unsafe.Sizeof(zero)), uint(unsafe.Alignof(zero)), func(obj unsafe.Pointer) {
		cleanup((*T)(obj))
	})
	return (*T)(ptr)
}

// MakeSlice allocates a zeroed slice of T with the given length and capacity
// from the arena. The elements are plain data; nothing runs for them at
// teardown. Returns nil when capacity is not positive.
func MakeSlice[T any](a *Arena, length, capacity int) []T {
	if capacity <= 0 {
		return nil
	}
	if length > capacity {
		panic("arena: slice length exceeds its capacity")
	}

	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	gfxmem.AssertRelease(elemSize == 0 || capacity <= math.MaxInt/elemSize,
		"slice of %d elements of %d bytes overflows the size budget", capacity, elemSize)

	ptr := a.Alloc(elemSize*capacity, uint(unsafe.Alignof(zero)))
	return unsafe.Slice((*T)(ptr), capacity)[:length]
}
