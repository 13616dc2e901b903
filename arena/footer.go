package arena

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/quillgfx/gfxmem"
)

// footerAction identifies the teardown behavior of one in-band footer. Footers
// store a one-byte tag dispatched through runAction rather than a code address,
// so no function pointer is ever written into block memory.
type footerAction uint8

const (
	// actionEndChain terminates the backward walk for a block. Installed once
	// at construction, before any user allocation.
	actionEndChain footerAction = iota
	// actionSkipPlainData jumps backward over a run of untracked bytes in one
	// step. Its payload is the byte count of the run.
	actionSkipPlainData
	// actionNextBlock chains teardown into the previous block and releases the
	// block it lives in. Its payload is the previous block's chain head plus
	// the owned-block index of its own block.
	actionNextBlock
	// actionCleanup runs a caller-registered cleanup for the object that
	// precedes the footer. Its payload indexes the arena's cleanup table.
	actionCleanup
)

const (
	// footerSize covers the action tag byte and the padding byte.
	footerSize = 2

	skipPayloadSize      = 4
	cleanupPayloadSize   = 4
	blockLinkPayloadSize = 8 + 4

	skipFooterOverhead    = skipPayloadSize + footerSize
	cleanupFooterOverhead = cleanupPayloadSize + footerSize
	blockLinkOverhead     = blockLinkPayloadSize + footerSize
)

func readByteAt(addr uintptr) byte {
	return *(*byte)(unsafe.Pointer(addr))
}

func readUint32At(addr uintptr) uint32 {
	return binary.LittleEndian.Uint32(unsafe.Slice((*byte)(unsafe.Pointer(addr)), 4))
}

func readPointerAt(addr uintptr) uintptr {
	return uintptr(binary.LittleEndian.Uint64(unsafe.Slice((*byte)(unsafe.Pointer(addr)), 8)))
}

// installRaw copies raw bookkeeping bytes at the cursor and advances it. The
// caller must have verified that the bytes fit in the active block.
func (a *Arena) installRaw(data []byte) {
	dest := unsafe.Slice((*byte)(unsafe.Pointer(a.cursor)), len(data))
	copy(dest, data)
	a.cursor += uintptr(len(data))
}

func (a *Arena) installRawUint32(value uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	a.installRaw(buf[:])
}

func (a *Arena) installRawPointer(value uintptr) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(value))
	a.installRaw(buf[:])
}

// installFooter writes the footer trailer and marks everything before the new
// cursor as covered by the cleanup chain.
func (a *Arena) installFooter(action footerAction, padding uintptr) {
	gfxmem.AssertRelease(padding <= 0xff, "footer padding of %d bytes does not fit in the padding byte", padding)
	a.installRaw([]byte{byte(action), byte(padding)})
	a.dtorCursor = a.cursor
}

// runCleanupChain walks footers backward from footerEnd, dispatching each
// action, until an action terminates the chain. This is the teardown loop:
// every action returns the address of the previous footer's end minus its
// recorded padding, or zero to stop.
func (a *Arena) runCleanupChain(footerEnd uintptr) {
	for footerEnd != 0 {
		action := footerAction(readByteAt(footerEnd - footerSize))
		padding := uintptr(readByteAt(footerEnd - 1))

		footerEnd = a.runAction(action, footerEnd) - padding
	}
}

func (a *Arena) runAction(action footerAction, footerEnd uintptr) uintptr {
	switch action {
	case actionEndChain:
		return 0

	case actionSkipPlainData:
		countAddr := footerEnd - footerSize - skipPayloadSize
		return countAddr - uintptr(readUint32At(countAddr))

	case actionNextBlock:
		payload := footerEnd - footerSize - blockLinkPayloadSize
		previousChain := readPointerAt(payload)
		blockIndex := readUint32At(payload + 8)
		a.runCleanupChain(previousChain)
		a.releaseHeapBlock(blockIndex)
		return 0

	case actionCleanup:
		indexAddr := footerEnd - footerSize - cleanupPayloadSize
		record := a.cleanups[readUint32At(indexAddr)]
		objEnd := indexAddr - uintptr(gfxmem.DebugMargin)
		objStart := objEnd - uintptr(record.size)
		if gfxmem.DebugMargin > 0 && !gfxmem.ValidateMagicValue(unsafe.Pointer(objStart), int(record.size)) {
			panic("arena: memory corruption detected after tracked allocation")
		}
		record.fn(unsafe.Pointer(objStart))
		return objStart
	}

	panic(fmt.Sprintf("arena: unknown footer action %d", action))
}

// releaseHeapBlock drops the arena's reference to an owned block. Each owned
// block is released exactly once, by the actionNextBlock footer at its start.
func (a *Arena) releaseHeapBlock(index uint32) {
	if a.heapBlocks[index] == nil {
		panic(fmt.Sprintf("arena: owned block %d released twice", index))
	}
	a.heapBlocks[index] = nil
}
