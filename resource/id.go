// Package resource implements the identity half of a GPU resource cache: a
// process-wide unique id generator and a registry that tracks registered
// resources until each is released exactly once. Budgeting, eviction, and
// scratch-key reuse stay with the consumer.
package resource

import "sync/atomic"

// UniqueID identifies a resource for the lifetime of the process. Ids are
// never reused until the counter wraps the full 32-bit range.
type UniqueID uint32

// InvalidUniqueID is never produced by CreateUniqueID and marks a resource
// that has not acquired an identity yet.
const InvalidUniqueID UniqueID = 0

var nextUniqueID uint32

// CreateUniqueID returns the next process-wide id, skipping InvalidUniqueID
// when the counter wraps. It is safe to call from multiple goroutines.
func CreateUniqueID() UniqueID {
	for {
		id := UniqueID(atomic.AddUint32(&nextUniqueID, 1))
		if id != InvalidUniqueID {
			return id
		}
	}
}
