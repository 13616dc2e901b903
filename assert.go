package gfxmem

import "fmt"

// AssertRelease panics when cond is false. Unlike the Debug* helpers, it is
// active in every build: it guards size arithmetic whose silent wraparound
// would corrupt allocator bookkeeping, which is strictly worse than a crash.
func AssertRelease(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("gfxmem: "+format, args...))
	}
}
