package resource

import (
	"context"
	"fmt"

	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/quillgfx/gfxmem"
	"golang.org/x/exp/slog"
)

// Resource is the surface the registry needs from cached objects: a stable
// id acquired from CreateUniqueID, a byte size for accounting, and a release
// hook that the registry runs exactly once.
type Resource interface {
	UniqueID() UniqueID
	Size() int
	OnRelease()
}

// Registry tracks registered resources by unique id until each is released.
// It is single-owner, like the arenas whose objects it accounts for.
type Registry struct {
	logger     *slog.Logger
	resources  *swiss.Map[UniqueID, Resource]
	totalBytes int
}

// NewRegistry creates an empty registry. A nil logger falls back to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:    logger,
		resources: swiss.NewMap[UniqueID, Resource](42),
	}
}

// Insert registers a resource under its unique id. The resource must have
// acquired an id first, and an id can only be registered once.
func (r *Registry) Insert(res Resource) error {
	id := res.UniqueID()
	if id == InvalidUniqueID {
		return errors.New("a resource must acquire its unique id before registration")
	}
	if r.resources.Has(id) {
		return errors.Errorf("a resource with id %d is already registered", id)
	}

	r.resources.Put(id, res)
	r.totalBytes += res.Size()
	return nil
}

// Release removes the resource registered under id and runs its OnRelease
// hook. Releasing an id that is not registered, including releasing one
// twice, is a contract violation and panics.
func (r *Registry) Release(id UniqueID) {
	res, ok := r.resources.Get(id)
	if !ok {
		panic(fmt.Sprintf("resource: id %d released twice or never registered", id))
	}

	r.resources.Delete(id)
	r.totalBytes -= res.Size()
	res.OnRelease()
}

// Remove detaches the resource registered under id without running its
// OnRelease hook, for resources whose teardown is owned elsewhere. Removing
// an id that is not registered panics, like Release.
func (r *Registry) Remove(id UniqueID) {
	res, ok := r.resources.Get(id)
	if !ok {
		panic(fmt.Sprintf("resource: id %d removed twice or never registered", id))
	}

	r.resources.Delete(id)
	r.totalBytes -= res.Size()
}

// Count returns the number of currently registered resources.
func (r *Registry) Count() int {
	return r.resources.Count()
}

// TotalBytes returns the summed size of currently registered resources.
func (r *Registry) TotalBytes() int {
	return r.totalBytes
}

// AddStatistics sums the registry's accounting into stats.
func (r *Registry) AddStatistics(stats *gfxmem.Statistics) {
	stats.AllocationCount += r.resources.Count()
	stats.AllocationBytes += r.totalBytes
}

// BuildStatsString writes a JSON diagnostic dump of the registered resources
// into writer.
func (r *Registry) BuildStatsString(writer *jwriter.Writer) {
	arr := writer.Array()
	defer arr.End()

	r.resources.Iter(func(id UniqueID, res Resource) bool {
		obj := arr.Object()
		obj.Name("Id").Int(int(id))
		obj.Name("Size").Int(res.Size())
		obj.End()
		return false
	})
}

// Destroy verifies that every registered resource has been released. Leaks
// are logged individually and reported as a single error; the leaked
// resources stay registered so the caller can inspect them.
func (r *Registry) Destroy() error {
	if r.resources.Count() == 0 {
		return nil
	}

	r.resources.Iter(func(id UniqueID, res Resource) bool {
		r.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED RESOURCE] resource still registered",
			slog.Int("id", int(id)),
			slog.Int("size", res.Size()))
		return false
	})

	return errors.New("some resources were not released before the destruction of this registry!")
}
