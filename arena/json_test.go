package arena_test

import (
	"encoding/json"
	"testing"
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/quillgfx/gfxmem/arena"
	"github.com/stretchr/testify/require"
)

func TestBuildStatsString(t *testing.T) {
	a := arena.NewArena(make([]byte, 128), 64)
	defer a.Destroy()

	a.Alloc(100, 8)
	a.AllocWithCleanup(200, 8, func(unsafe.Pointer) {})

	writer := jwriter.NewWriter()
	a.BuildStatsString(&writer)
	require.NoError(t, writer.Error())

	var dump struct {
		TotalBytes         int
		Blocks             int
		Allocations        int
		TrackedAllocations int
		AllocatedBytes     int
		UnusedBytes        int
		OwnedBlocks        []struct {
			Index int
			Size  int
		}
	}
	require.NoError(t, json.Unmarshal(writer.Bytes(), &dump))

	require.Equal(t, 2, dump.Allocations)
	require.Equal(t, 1, dump.TrackedAllocations)
	require.Equal(t, 300, dump.AllocatedBytes)
	require.Equal(t, dump.Blocks, len(dump.OwnedBlocks)+1)
	for i, block := range dump.OwnedBlocks {
		require.Equal(t, i, block.Index)
		require.Greater(t, block.Size, 0)
	}
}
