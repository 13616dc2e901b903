package arena_test

import (
	"testing"
	"unsafe"

	"github.com/quillgfx/gfxmem/arena"
	"github.com/stretchr/testify/require"
)

type drawRecord struct {
	op       uint8
	layer    uint16
	vertices [4]float32
	indices  *[]uint16
}

func TestNewReturnsZeroedValue(t *testing.T) {
	a := arena.NewArena(make([]byte, 1024), 0)
	defer a.Destroy()

	rec := arena.New[drawRecord](a)
	require.NotNil(t, rec)
	require.Zero(t, rec.op)
	require.Zero(t, rec.layer)
	require.Nil(t, rec.indices)
	require.Zero(t, uintptr(unsafe.Pointer(rec))%unsafe.Alignof(drawRecord{}))

	rec.op = 3
	rec.layer = 9
	rec.vertices[2] = 1.5

	other := arena.New[drawRecord](a)
	require.Zero(t, other.op)
	require.Equal(t, uint8(3), rec.op)
}

func TestNewWithCleanupSeesFinalValue(t *testing.T) {
	a := arena.NewArena(make([]byte, 1024), 0)

	var observed []uint16
	rec := arena.NewWithCleanup(a, func(r *drawRecord) {
		observed = append(observed, r.layer)
	})
	rec.layer = 7

	second := arena.NewWithCleanup(a, func(r *drawRecord) {
		observed = append(observed, r.layer)
	})
	second.layer = 11

	a.Destroy()
	require.Equal(t, []uint16{11, 7}, observed)
}

func TestMakeSlice(t *testing.T) {
	a := arena.NewArena(make([]byte, 4096), 0)
	defer a.Destroy()

	s := arena.MakeSlice[uint32](a, 3, 8)
	require.Len(t, s, 3)
	require.Equal(t, 8, cap(s))
	require.Zero(t, uintptr(unsafe.Pointer(unsafe.SliceData(s)))%4)

	s = append(s, 42)
	require.Len(t, s, 4)
	require.Equal(t, uint32(42), s[3])

	other := arena.MakeSlice[uint32](a, 8, 8)
	for i := range other {
		other[i] = 0xdeadbeef
	}
	require.Equal(t, uint32(42), s[3], "growing within capacity must not collide with later slices")

	require.Nil(t, arena.MakeSlice[uint32](a, 0, 0))
	require.Panics(t, func() {
		arena.MakeSlice[uint32](a, 9, 8)
	})
}

func TestMixedTypedAllocations(t *testing.T) {
	a := arena.NewArena(nil, 256)

	released := 0
	for i := 0; i < 20; i++ {
		rec := arena.New[drawRecord](a)
		rec.op = uint8(i)

		buf := arena.MakeSlice[byte](a, 16, 16)
		buf[0] = byte(i)

		arena.NewWithCleanup(a, func(r *drawRecord) { released++ })
	}

	a.Destroy()
	require.Equal(t, 20, released)
}
