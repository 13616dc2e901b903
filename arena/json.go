package arena

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// ArenaJsonData populates a json object with information about this arena.
// The object state is passed by pointer so the comma bookkeeping it carries
// survives into the caller's later writes.
func (a *Arena) ArenaJsonData(json *jwriter.ObjectState) {
	json.Name("TotalBytes").Int(a.blockBytes())
	json.Name("Blocks").Int(a.BlockCount())
	json.Name("Allocations").Int(a.allocCount)
	json.Name("TrackedAllocations").Int(a.trackedCount)
	json.Name("AllocatedBytes").Int(a.allocBytes)
	if a.cursor != 0 {
		json.Name("UnusedBytes").Int(int(a.end - a.cursor))
	} else {
		json.Name("UnusedBytes").Int(0)
	}
}

// BuildStatsString writes a JSON diagnostic dump of the arena, including a
// per-block breakdown, into writer.
func (a *Arena) BuildStatsString(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	a.ArenaJsonData(&obj)

	blocks := obj.Name("OwnedBlocks").Array()
	defer blocks.End()

	for i := range a.heapBlocks {
		blockObj := blocks.Object()
		blockObj.Name("Index").Int(i)
		blockObj.Name("Size").Int(len(a.heapBlocks[i]))
		blockObj.End()
	}
}
