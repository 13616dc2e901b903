package arena

import (
	"context"
	"math"
	"unsafe"

	"github.com/quillgfx/gfxmem"
	"golang.org/x/exp/slog"
)

// ensureSpace acquires a new owned block large enough for a pending request of
// size bytes (which already includes any footer overhead the caller needs) at
// the given alignment, links teardown back to the old block's chain, and makes
// the new block active.
//
// Block sizes follow a saturating Fibonacci-like curve seeded at construction,
// so repeated growth stays geometric without a tunable factor. The chosen size
// is rounded up to a 4KiB boundary above 32KiB and to 16 bytes otherwise:
// large blocks land on page granularity, small ones on typical maximum scalar
// alignment. All of the arithmetic fails fast on overflow; wrapping here would
// corrupt the skip counts and padding bytes of the footer protocol.
func (a *Arena) ensureSpace(size uint32, alignment uint) {
	const maxSize = math.MaxUint32
	const overhead = blockLinkOverhead + footerSize

	gfxmem.AssertRelease(size <= maxSize-overhead,
		"request of %d bytes overflows the block size budget", size)
	objSizeAndOverhead := size + overhead

	alignmentOverhead := uint32(alignment) - 1
	gfxmem.AssertRelease(objSizeAndOverhead <= maxSize-alignmentOverhead,
		"request of %d bytes at alignment %d overflows the block size budget", size, alignment)
	objSizeAndOverhead += alignmentOverhead

	minAllocationSize := a.nextHeapAlloc

	// Advance the growth sequence, pinning at the top of the range instead of
	// wrapping.
	if a.yetNextHeapAlloc <= maxSize-a.nextHeapAlloc {
		a.nextHeapAlloc, a.yetNextHeapAlloc = a.yetNextHeapAlloc, a.nextHeapAlloc+a.yetNextHeapAlloc
	} else {
		a.nextHeapAlloc = maxSize
	}

	allocationSize := objSizeAndOverhead
	if minAllocationSize > allocationSize {
		allocationSize = minAllocationSize
	}

	var roundMask uint32 = 16 - 1
	if allocationSize > 1<<15 {
		roundMask = 1<<12 - 1
	}
	gfxmem.AssertRelease(allocationSize <= maxSize-roundMask,
		"block of %d bytes cannot be rounded without overflow", allocationSize)
	allocationSize = (allocationSize + roundMask) &^ roundMask

	newBlock := make([]byte, allocationSize)
	blockIndex := len(a.heapBlocks)
	gfxmem.AssertRelease(uint64(blockIndex) <= math.MaxUint32,
		"owned block table overflow after %d blocks", blockIndex)
	a.heapBlocks = append(a.heapBlocks, newBlock)

	previousChain := a.dtorCursor
	base := uintptr(unsafe.Pointer(unsafe.SliceData(newBlock)))
	a.cursor = base
	a.dtorCursor = base
	a.end = base + uintptr(allocationSize)

	// The block-link footer is this block's sentinel: draining it chains into
	// the previous block's footers and then releases this block's storage.
	a.installRawPointer(previousChain)
	a.installRawUint32(uint32(blockIndex))
	a.installFooter(actionNextBlock, 0)

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "acquired arena block",
		slog.Int("size", int(allocationSize)),
		slog.Int("ownedBlocks", len(a.heapBlocks)),
		slog.Int("nextHeapAlloc", int(a.nextHeapAlloc)))
}
