package arena

import "golang.org/x/exp/slog"

// ArenaWithReset is an Arena that remembers its construction parameters, so
// the whole region can be torn down and rebuilt without the caller restating
// them. Reset reuses the original initial block, including a caller-supplied
// one.
type ArenaWithReset struct {
	Arena

	firstBlock          []byte
	firstHeapAllocation int
}

// NewArenaWithReset creates a resettable arena. The parameters match NewArena.
func NewArenaWithReset(initialBlock []byte, firstHeapAllocation int, options ...Option) *ArenaWithReset {
	a := &ArenaWithReset{
		firstBlock:          initialBlock,
		firstHeapAllocation: firstHeapAllocation,
	}
	for _, opt := range options {
		opt(&a.Arena)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.init(initialBlock, firstHeapAllocation)
	return a
}

// Reset destroys the arena, running every registered cleanup in reverse
// allocation order and releasing every owned block, then reinitializes it
// with the original initial block and growth hint.
func (a *ArenaWithReset) Reset() {
	a.Destroy()
	a.init(a.firstBlock, a.firstHeapAllocation)
}
