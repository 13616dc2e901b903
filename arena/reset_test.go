package arena_test

import (
	"testing"
	"unsafe"

	"github.com/quillgfx/gfxmem/arena"
	"github.com/stretchr/testify/require"
)

func TestResetRunsCleanupsOnce(t *testing.T) {
	a := arena.NewArenaWithReset(make([]byte, 512), 0)

	invoked := map[string]int{}
	for _, name := range []string{"A", "B", "C"} {
		name := name
		a.AllocWithCleanup(16, 8, func(unsafe.Pointer) {
			invoked[name]++
		})
	}

	a.Reset()
	require.Equal(t, map[string]int{"A": 1, "B": 1, "C": 1}, invoked)

	a.Destroy()
	require.Equal(t, map[string]int{"A": 1, "B": 1, "C": 1}, invoked)
}

func TestResetReusesInitialBlock(t *testing.T) {
	block := make([]byte, 256)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(block)))

	a := arena.NewArenaWithReset(block, 0)

	first := uintptr(a.Alloc(32, 8))
	require.GreaterOrEqual(t, uint64(first), uint64(base))
	require.Less(t, uint64(first), uint64(base)+256)

	// Exhaust the initial block so the arena grows.
	for i := 0; i < 32; i++ {
		a.Alloc(64, 8)
	}
	require.Greater(t, a.BlockCount(), 1)

	a.Reset()
	require.Equal(t, 1, a.BlockCount())

	again := uintptr(a.Alloc(32, 8))
	require.GreaterOrEqual(t, uint64(again), uint64(base))
	require.Less(t, uint64(again), uint64(base)+256)
	require.Equal(t, first, again, "the same allocation sequence should land at the same spot after reset")

	a.Destroy()
}

func TestResetRestoresGrowthSeed(t *testing.T) {
	a := arena.NewArenaWithReset(nil, 64)

	for i := 0; i < 16; i++ {
		a.Alloc(128, 8)
	}
	grown := a.BlockCount()
	require.Greater(t, grown, 1)

	a.Reset()
	require.Zero(t, a.BlockCount())
	require.Zero(t, a.AllocationCount())

	// The growth curve starts over from the original hint.
	a.Alloc(8, 8)
	require.Equal(t, 1, a.BlockCount())

	a.Destroy()
}

func TestResetEmptyArena(t *testing.T) {
	a := arena.NewArenaWithReset(nil, 0)
	a.Reset()
	a.Reset()

	invoked := 0
	a.AllocWithCleanup(8, 8, func(unsafe.Pointer) { invoked++ })
	a.Reset()
	require.Equal(t, 1, invoked)

	a.Destroy()
}
