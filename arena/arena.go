// Package arena implements a region allocator for short-lived, heterogeneously
// typed objects: draw records, command descriptors, and similar per-frame data.
// Allocation bumps a cursor through growable contiguous blocks; objects that
// need teardown register a cleanup that runs in reverse allocation order when
// the arena is destroyed or reset. Bookkeeping is written in-band as footer
// records chained backward through the blocks, so teardown needs no side table.
//
// An Arena is single-owner. Sharing one across goroutines without external
// synchronization is a caller contract violation, not a supported mode.
//
// Arena memory is backed by pointerless byte blocks, so the garbage collector
// does not scan it: a Go pointer stored inside an arena-allocated object must
// also be kept reachable from ordinary Go memory.
package arena

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/quillgfx/gfxmem"
	"golang.org/x/exp/slog"
)

// CleanupFunc releases whatever an object allocated from the arena holds. It
// receives the address of the object it was registered for.
type CleanupFunc func(obj unsafe.Pointer)

type cleanupRecord struct {
	fn   CleanupFunc
	size uint32
}

// Arena hands out fixed-lifetime allocations from a chain of memory blocks.
// The first block may be caller-supplied and is never released by the arena;
// blocks acquired afterwards are owned and released during teardown.
//
// The zero Arena is not usable; create one with NewArena.
type Arena struct {
	// dtorCursor marks the end of the last installed footer. Bytes between
	// dtorCursor and cursor are a run of untracked plain data not yet covered
	// by a skip footer. dtorCursor <= cursor <= end whenever cursor is nonzero.
	dtorCursor uintptr
	cursor     uintptr
	end        uintptr

	// Sizes of the next two heap blocks to acquire. Advances like a Fibonacci
	// sequence and saturates at the top of the uint32 range instead of wrapping.
	nextHeapAlloc    uint32
	yetNextHeapAlloc uint32

	initialBlock []byte   // borrowed from the caller, never released here
	heapBlocks   [][]byte // owned; entries are nilled exactly once at teardown

	cleanups []cleanupRecord

	allocCount   int
	trackedCount int
	allocBytes   int
	allocSizeMin int
	allocSizeMax int

	logger *slog.Logger
}

// Option configures an Arena at construction.
type Option func(*Arena)

// WithLogger routes the arena's diagnostic logging to the provided logger
// instead of slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Arena) {
		a.logger = logger
	}
}

func firstAllocatedBlock(blockSize, firstHeapAllocation uint32) uint32 {
	if firstHeapAllocation > 0 {
		return firstHeapAllocation
	}
	if blockSize > 0 {
		return blockSize
	}
	return 1024
}

// NewArena creates an arena that bump-allocates from initialBlock until it is
// exhausted and from owned heap blocks afterwards. initialBlock may be nil or
// empty, in which case the first allocation acquires a heap block sized from
// firstHeapAllocation (falling back to len(initialBlock), then 1024).
//
// If initialBlock is too small to hold even the end-of-chain footer, the arena
// starts empty and behaves as if no block had been supplied.
func NewArena(initialBlock []byte, firstHeapAllocation int, options ...Option) *Arena {
	a := &Arena{}
	for _, opt := range options {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.init(initialBlock, firstHeapAllocation)
	return a
}

func (a *Arena) init(initialBlock []byte, firstHeapAllocation int) {
	size := len(initialBlock)
	gfxmem.AssertRelease(uint64(size) <= math.MaxUint32,
		"initial block of %d bytes exceeds the 32-bit size budget", size)
	gfxmem.AssertRelease(firstHeapAllocation >= 0 && uint64(firstHeapAllocation) <= math.MaxUint32,
		"first heap allocation hint %d exceeds the 32-bit size budget", firstHeapAllocation)

	seed := firstAllocatedBlock(uint32(size), uint32(firstHeapAllocation))

	a.initialBlock = initialBlock
	a.heapBlocks = nil
	a.cleanups = nil
	a.nextHeapAlloc = seed
	a.yetNextHeapAlloc = seed
	a.allocCount = 0
	a.trackedCount = 0
	a.allocBytes = 0
	a.allocSizeMin = math.MaxInt
	a.allocSizeMax = 0

	if size < footerSize {
		// Too small to carry the end-of-chain footer. Start empty and force a
		// heap acquisition on first use instead of doing pointer math on a
		// region that cannot hold bookkeeping.
		a.cursor = 0
		a.dtorCursor = 0
		a.end = 0
		return
	}

	base := uintptr(unsafe.Pointer(unsafe.SliceData(initialBlock)))
	a.cursor = base
	a.dtorCursor = base
	a.end = base + uintptr(size)
	a.installFooter(actionEndChain, 0)
}

// Alloc returns the address of a zeroed span of size bytes aligned to
// alignment, which must be a power of two. The span holds plain data: nothing
// runs for it at teardown, and it stays valid until the arena is destroyed or
// reset. Alloc never fails; unrecoverable size arithmetic panics instead.
func (a *Arena) Alloc(size int, alignment uint) unsafe.Pointer {
	gfxmem.DebugCheckPow2(alignment, "alignment")

	objStart := a.allocObject(toUint32(size), alignment)
	a.cursor = objStart + uintptr(size)
	a.noteAllocation(size)

	zeroSpan(objStart, size)
	return unsafe.Pointer(objStart)
}

// AllocWithCleanup returns the address of a zeroed span of size bytes aligned
// to alignment and registers cleanup to run for it when the arena is destroyed
// or reset. Cleanups run in reverse allocation order, each exactly once.
func (a *Arena) AllocWithCleanup(size int, alignment uint, cleanup CleanupFunc) unsafe.Pointer {
	gfxmem.DebugCheckPow2(alignment, "alignment")
	if cleanup == nil {
		panic("arena: AllocWithCleanup requires a cleanup function")
	}

	size32 := toUint32(size)
	trailer := uint32(gfxmem.DebugMargin) + cleanupFooterOverhead
	gfxmem.AssertRelease(size32 <= math.MaxUint32-trailer,
		"allocation of %d bytes leaves no room for its cleanup footer", size)

	objStart := a.allocObjectWithFooter(size32+trailer, alignment)

	// The slack between the previous footer (or plain-data run) and the object
	// start is recorded in the footer's padding byte so the backward walk can
	// hop over it.
	padding := objStart - a.cursor
	a.cursor = objStart + uintptr(size32)

	if gfxmem.DebugMargin > 0 {
		gfxmem.WriteMagicValue(unsafe.Pointer(objStart), size)
		a.cursor += uintptr(gfxmem.DebugMargin)
	}

	index := len(a.cleanups)
	gfxmem.AssertRelease(uint64(index) <= math.MaxUint32,
		"cleanup table overflow after %d tracked allocations", index)
	a.cleanups = append(a.cleanups, cleanupRecord{fn: cleanup, size: size32})

	a.installRawUint32(uint32(index))
	a.installFooter(actionCleanup, padding)

	a.noteAllocation(size)
	a.trackedCount++

	zeroSpan(objStart, size)
	return unsafe.Pointer(objStart)
}

// allocObject finds an aligned address for an untracked span, growing the
// block chain when the active block cannot fit it. It reserves no footer
// space; the bytes become part of a plain-data run that a later tracked
// allocation closes with a skip footer.
func (a *Arena) allocObject(size uint32, alignment uint) uintptr {
	for {
		if a.cursor == 0 {
			// A fresh or degraded-empty arena has no block at all. Pointer
			// math on the zero cursor is meaningless; grow first.
			a.ensureSpace(size, alignment)
			continue
		}

		objStart := gfxmem.AlignUpPointer(a.cursor, alignment)
		if objStart > a.end || a.end-objStart < uintptr(size) {
			a.ensureSpace(size, alignment)
			continue
		}

		return objStart
	}
}

// allocObjectWithFooter finds an aligned address for a tracked span whose
// sizeIncludingFooter already accounts for its own trailer. If a run of plain
// data precedes the allocation point, a skip footer is installed here so
// teardown can jump over the run in one step.
func (a *Arena) allocObjectWithFooter(sizeIncludingFooter uint32, alignment uint) uintptr {
	for {
		var skipOverhead uint32
		needsSkipFooter := a.cursor != a.dtorCursor
		if needsSkipFooter {
			skipOverhead = skipFooterOverhead
		}
		gfxmem.AssertRelease(sizeIncludingFooter <= math.MaxUint32-skipOverhead,
			"allocation of %d bytes leaves no room for a skip footer", sizeIncludingFooter)
		totalSize := sizeIncludingFooter + skipOverhead

		if a.cursor == 0 {
			a.ensureSpace(totalSize, alignment)
			continue
		}

		objStart := gfxmem.AlignUpPointer(a.cursor+uintptr(skipOverhead), alignment)
		if objStart > a.end || a.end-objStart < uintptr(totalSize) {
			a.ensureSpace(totalSize, alignment)
			continue
		}

		if needsSkipFooter {
			a.installRawUint32(uint32(a.cursor - a.dtorCursor))
			a.installFooter(actionSkipPlainData, 0)
		}

		return objStart
	}
}

// Destroy runs every registered cleanup in reverse allocation order, releases
// every owned block exactly once, and leaves the arena unusable. The borrowed
// initial block is never released. Cleanups must not allocate from the arena
// being destroyed.
func (a *Arena) Destroy() {
	a.runCleanupChain(a.dtorCursor)

	for i := range a.heapBlocks {
		if a.heapBlocks[i] != nil {
			panic(fmt.Sprintf("arena: owned block %d survived teardown", i))
		}
	}

	a.heapBlocks = nil
	a.cleanups = nil
	a.initialBlock = nil
	a.cursor = 0
	a.dtorCursor = 0
	a.end = 0
}

// Validate performs internal consistency checks on the arena. When the arena
// is functioning correctly it cannot return an error, but it may assist in
// diagnosing issues. It is hooked into gfxmem.DebugValidate.
func (a *Arena) Validate() error {
	if a.cursor == 0 {
		if a.dtorCursor != 0 || a.end != 0 {
			return errors.New("an arena without an active block must have no cleanup chain or block end")
		}
		return nil
	}

	if a.dtorCursor > a.cursor {
		return errors.Errorf("the cleanup chain head %#x sits past the cursor %#x", a.dtorCursor, a.cursor)
	}
	if a.cursor > a.end {
		return errors.Errorf("the cursor %#x sits past the end of the active block %#x", a.cursor, a.end)
	}
	if a.nextHeapAlloc == 0 || a.yetNextHeapAlloc == 0 {
		return errors.Errorf("the growth sequence must stay positive, got %d and %d", a.nextHeapAlloc, a.yetNextHeapAlloc)
	}
	for i := range a.heapBlocks {
		if a.heapBlocks[i] == nil {
			return errors.Errorf("owned block %d was released while the arena is live", i)
		}
	}
	if len(a.cleanups) != a.trackedCount {
		return errors.Errorf("the cleanup table holds %d records but %d tracked allocations were made", len(a.cleanups), a.trackedCount)
	}
	return nil
}

// AllocationCount returns the number of spans handed out since construction
// or the last reset.
func (a *Arena) AllocationCount() int { return a.allocCount }

// TrackedAllocationCount returns how many of those spans carry a cleanup.
func (a *Arena) TrackedAllocationCount() int { return a.trackedCount }

// BlockCount returns the number of blocks currently backing the arena,
// including a borrowed initial block if one is in use.
func (a *Arena) BlockCount() int {
	count := len(a.heapBlocks)
	if len(a.initialBlock) >= footerSize {
		count++
	}
	return count
}

// AddStatistics sums this arena's allocation statistics into stats.
func (a *Arena) AddStatistics(stats *gfxmem.Statistics) {
	stats.BlockCount += a.BlockCount()
	stats.AllocationCount += a.allocCount
	stats.BlockBytes += a.blockBytes()
	stats.AllocationBytes += a.allocBytes
}

// AddDetailedStatistics sums this arena's allocation statistics, size extrema,
// and the unused tail of the active block into stats.
func (a *Arena) AddDetailedStatistics(stats *gfxmem.DetailedStatistics) {
	a.AddStatistics(&stats.Statistics)
	stats.TrackedAllocationCount += a.trackedCount

	if a.allocCount > 0 {
		if a.allocSizeMin < stats.AllocationSizeMin {
			stats.AllocationSizeMin = a.allocSizeMin
		}
		if a.allocSizeMax > stats.AllocationSizeMax {
			stats.AllocationSizeMax = a.allocSizeMax
		}
	}
	if a.cursor != 0 {
		stats.AddUnusedRange(int(a.end - a.cursor))
	}
}

func (a *Arena) blockBytes() int {
	total := 0
	if len(a.initialBlock) >= footerSize {
		total = len(a.initialBlock)
	}
	for i := range a.heapBlocks {
		total += len(a.heapBlocks[i])
	}
	return total
}

func (a *Arena) noteAllocation(size int) {
	a.allocCount++
	a.allocBytes += size
	if size < a.allocSizeMin {
		a.allocSizeMin = size
	}
	if size > a.allocSizeMax {
		a.allocSizeMax = size
	}
}

func toUint32(size int) uint32 {
	gfxmem.AssertRelease(size >= 0 && uint64(size) <= math.MaxUint32,
		"span of %d bytes cannot be tracked by a 32-bit footer protocol", size)
	return uint32(size)
}

func zeroSpan(addr uintptr, size int) {
	span := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	for i := range span {
		span[i] = 0
	}
}
