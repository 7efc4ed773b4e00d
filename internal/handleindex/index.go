// Package handleindex maps topology handles to dense per-dimension IDs.
//
// Surfaces and volumes receive IDs 1..N in the order they are passed to
// Build; ID 0 is reserved as "no entity". The lookup table is keyed by
// handle - offset, where offset is the smallest indexed handle. An Index is
// immutable once built: any change to the entity set requires a new Build.
package handleindex

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/topo"
)

var (
	// ErrNotFound is returned for handles or IDs outside the index.
	ErrNotFound = errors.New("handleindex: not found")
	// ErrIndexStale is returned by Check when a generation predates the index.
	ErrIndexStale = errors.New("handleindex: index stale")
)

var generations atomic.Uint64

// Index is a bidirectional handle/ID map for surfaces and volumes, plus the
// list of metadata groups.
type Index struct {
	offset   mesh.Handle
	lookup   []int32
	surfaces []mesh.Handle
	volumes  []mesh.Handle
	groups   []mesh.Handle
	gen      uint64
}

// Build indexes surfaces and volumes. Each slice must be free of duplicates
// and of handle 0. Empty inputs build an empty index.
func Build(surfaces, volumes, groups []mesh.Handle) (*Index, error) {
	idx := &Index{
		surfaces: make([]mesh.Handle, 1, len(surfaces)+1),
		volumes:  make([]mesh.Handle, 1, len(volumes)+1),
		groups:   make([]mesh.Handle, 1, len(groups)+1),
		gen:      generations.Add(1),
	}
	idx.groups = append(idx.groups, groups...)

	if len(surfaces)+len(volumes) == 0 {
		return idx, nil
	}

	lo, hi := bounds(surfaces, volumes)
	if lo == 0 {
		return nil, errors.New("handleindex: handle 0 cannot be indexed")
	}
	idx.offset = lo
	idx.lookup = make([]int32, hi-lo+1)

	for _, h := range surfaces {
		if idx.lookup[h-lo] != 0 {
			return nil, fmt.Errorf("handleindex: duplicate handle %d", h)
		}
		idx.surfaces = append(idx.surfaces, h)
		idx.lookup[h-lo] = int32(len(idx.surfaces) - 1)
	}
	for _, h := range volumes {
		if idx.lookup[h-lo] != 0 {
			return nil, fmt.Errorf("handleindex: duplicate handle %d", h)
		}
		idx.volumes = append(idx.volumes, h)
		idx.lookup[h-lo] = int32(len(idx.volumes) - 1)
	}
	return idx, nil
}

func bounds(sets ...[]mesh.Handle) (lo, hi mesh.Handle) {
	first := true
	for _, s := range sets {
		if len(s) == 0 {
			continue
		}
		l, h := slices.Min(s), slices.Max(s)
		if first {
			lo, hi, first = l, h, false
			continue
		}
		lo, hi = min(lo, l), max(hi, h)
	}
	return lo, hi
}

// IndexOf returns the per-dimension ID of h.
func (idx *Index) IndexOf(h mesh.Handle) (int, error) {
	if h < idx.offset || uint64(h-idx.offset) >= uint64(len(idx.lookup)) {
		return 0, fmt.Errorf("%w: handle %d outside indexed range", ErrNotFound, h)
	}
	id := idx.lookup[h-idx.offset]
	if id == 0 {
		return 0, fmt.Errorf("%w: handle %d is not indexed", ErrNotFound, h)
	}
	return int(id), nil
}

// Handle returns the handle with the given ID in dimension dim
// (topo.DimSurface or topo.DimVolume).
func (idx *Index) Handle(dim topo.Dimension, id int) (mesh.Handle, error) {
	var list []mesh.Handle
	switch dim {
	case topo.DimSurface:
		list = idx.surfaces
	case topo.DimVolume:
		list = idx.volumes
	case topo.DimGroup:
		list = idx.groups
	default:
		return 0, fmt.Errorf("%w: dimension %d is not indexed", ErrNotFound, dim)
	}
	if id <= 0 || id >= len(list) {
		return 0, fmt.Errorf("%w: dimension %d id %d", ErrNotFound, dim, id)
	}
	return list[id], nil
}

// Count returns the number of indexed entities of dimension dim.
func (idx *Index) Count(dim topo.Dimension) int {
	switch dim {
	case topo.DimSurface:
		return len(idx.surfaces) - 1
	case topo.DimVolume:
		return len(idx.volumes) - 1
	case topo.DimGroup:
		return len(idx.groups) - 1
	default:
		return 0
	}
}

// Groups returns the metadata groups in index order.
func (idx *Index) Groups() []mesh.Handle {
	return slices.Clone(idx.groups[1:])
}

// Offset returns the smallest indexed handle.
func (idx *Index) Offset() mesh.Handle { return idx.offset }

// Generation returns the process-unique stamp of this build.
func (idx *Index) Generation() uint64 { return idx.gen }

// Check returns ErrIndexStale when gen belongs to an earlier build.
func (idx *Index) Check(gen uint64) error {
	if gen != idx.gen {
		return fmt.Errorf("%w: generation %d, current %d", ErrIndexStale, gen, idx.gen)
	}
	return nil
}
