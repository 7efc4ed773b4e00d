package query

import (
	"fmt"
	"slices"

	"github.com/hupe1980/brepq/mesh"
)

// RayHistory records the facets crossed by one particle track so that a
// subsequent RayFire does not intersect a facet it just left.
//
// The zero value is an empty history. A RayHistory is not safe for
// concurrent use; each track owns its own.
type RayHistory struct {
	facets []mesh.Handle
}

// Reset clears the history at the start of a new track.
func (h *RayHistory) Reset() {
	h.facets = h.facets[:0]
}

// ResetToLastIntersection keeps only the most recent crossing.
func (h *RayHistory) ResetToLastIntersection() error {
	if len(h.facets) == 0 {
		return fmt.Errorf("%w: empty ray history", ErrNotFound)
	}
	last := h.facets[len(h.facets)-1]
	h.facets = append(h.facets[:0], last)
	return nil
}

// RollbackLastIntersection forgets the most recent crossing.
func (h *RayHistory) RollbackLastIntersection() error {
	if len(h.facets) == 0 {
		return fmt.Errorf("%w: empty ray history", ErrNotFound)
	}
	h.facets = h.facets[:len(h.facets)-1]
	return nil
}

// LastIntersection returns the facet of the most recent crossing.
func (h *RayHistory) LastIntersection() (mesh.Handle, bool) {
	if h == nil || len(h.facets) == 0 {
		return 0, false
	}
	return h.facets[len(h.facets)-1], true
}

// Contains reports whether facet was crossed on this track.
func (h *RayHistory) Contains(facet mesh.Handle) bool {
	return h != nil && slices.Contains(h.facets, facet)
}

// Len returns the number of recorded crossings.
func (h *RayHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.facets)
}

// Facets returns a copy of the recorded facets in crossing order.
func (h *RayHistory) Facets() []mesh.Handle {
	if h == nil {
		return nil
	}
	return slices.Clone(h.facets)
}

func (h *RayHistory) add(facet mesh.Handle) {
	if h != nil {
		h.facets = append(h.facets, facet)
	}
}

// Clone returns an independent copy of h.
func (h *RayHistory) Clone() RayHistory {
	if h == nil {
		return RayHistory{}
	}
	return RayHistory{facets: slices.Clone(h.facets)}
}
