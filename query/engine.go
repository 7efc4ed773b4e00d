// Package query answers geometric questions about the volumes of a topology:
// ray fire, point containment, closest-surface distance, measures and normals.
//
// An Engine keeps a private spatial index per volume (bounding box plus the
// sense-adjusted facet list). Volumes without an index are answered from a
// transient facet list that is not cached, so an unindexed volume stays
// unindexed. Engines are not safe for concurrent use; give each goroutine
// its own Engine over the shared topology.
package query

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/topo"
)

// Containment classifies a point relative to a volume.
type Containment int

const (
	Boundary Containment = -1
	Outside  Containment = 0
	Inside   Containment = 1
)

func (c Containment) String() string {
	switch c {
	case Boundary:
		return "boundary"
	case Outside:
		return "outside"
	case Inside:
		return "inside"
	default:
		return fmt.Sprintf("Containment(%d)", int(c))
	}
}

// ErrNotFound is returned when a volume, surface, or history entry is missing.
var ErrNotFound = errors.New("query: not found")

type facet struct {
	tri  mesh.Handle
	surf mesh.Handle
	v    [3]mesh.Vec3
	// normal points out of the volume.
	normal   mesh.Vec3
	reversed bool
}

type volumeIndex struct {
	box    mesh.Box
	facets []facet
	// measure is the signed enclosed volume.
	measure float64
}

// Engine is a spatial-query engine over one topology.
type Engine struct {
	tool      *topo.Tool
	overlap   float64
	precision float64
	indexes   map[mesh.Handle]*volumeIndex
}

// New creates an Engine over tool.
func New(tool *topo.Tool, optFns ...Option) *Engine {
	e := &Engine{
		tool:      tool,
		overlap:   DefaultOverlapThickness,
		precision: DefaultNumericalPrecision,
		indexes:   make(map[mesh.Handle]*volumeIndex),
	}
	for _, fn := range optFns {
		fn(e)
	}
	return e
}

// Tool returns the topology the engine queries.
func (e *Engine) Tool() *topo.Tool { return e.tool }

// SetOverlapThickness sets the overlap tolerance.
func (e *Engine) SetOverlapThickness(v float64) { e.overlap = v }

// SetNumericalPrecision sets the numerical precision.
func (e *Engine) SetNumericalPrecision(v float64) { e.precision = v }

// OverlapThickness returns the overlap tolerance.
func (e *Engine) OverlapThickness() float64 { return e.overlap }

// NumericalPrecision returns the numerical precision.
func (e *Engine) NumericalPrecision() float64 { return e.precision }

func wrapNotFound(err error) error {
	if errors.Is(err, topo.ErrNotFound) || errors.Is(err, mesh.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func (e *Engine) collect(vol mesh.Handle) (*volumeIndex, error) {
	surfaces, err := e.tool.Surfaces(vol)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	idx := &volumeIndex{box: mesh.EmptyBox()}
	for _, surf := range surfaces {
		sense, err := e.tool.Sense(surf, vol)
		if err != nil {
			return nil, wrapNotFound(err)
		}
		if sense == topo.Both {
			// Contributions from both sides cancel.
			continue
		}
		tris, err := e.tool.Triangles(surf)
		if err != nil {
			return nil, wrapNotFound(err)
		}
		for _, tri := range tris {
			v, err := e.tool.DB().TriangleCoords(tri)
			if err != nil {
				return nil, wrapNotFound(err)
			}
			n := triangleNormal(v)
			tv := signedTetVolume(v)
			reversed := sense == topo.Reverse
			if reversed {
				n, tv = n.Scale(-1), -tv
			}
			idx.facets = append(idx.facets, facet{tri: tri, surf: surf, v: v, normal: n, reversed: reversed})
			idx.measure += tv
			for _, p := range v {
				idx.box = idx.box.Extend(p)
			}
		}
	}
	return idx, nil
}

func (e *Engine) lookup(vol mesh.Handle) (*volumeIndex, error) {
	if idx, ok := e.indexes[vol]; ok {
		return idx, nil
	}
	return e.collect(vol)
}

// BuildIndex builds (or rebuilds) the spatial index of vol.
func (e *Engine) BuildIndex(vol mesh.Handle) error {
	idx, err := e.collect(vol)
	if err != nil {
		return err
	}
	e.indexes[vol] = idx
	return nil
}

// BuildIndexes builds the spatial index of every volume of the topology,
// including the implicit complement when one exists.
func (e *Engine) BuildIndexes() error {
	vols, err := e.tool.Entities(topo.DimVolume)
	if err != nil {
		return err
	}
	for _, vol := range vols {
		if err := e.BuildIndex(vol); err != nil {
			return fmt.Errorf("query: build index for volume %d: %w", vol, err)
		}
	}
	return nil
}

// HasIndex reports whether vol has a spatial index.
func (e *Engine) HasIndex(vol mesh.Handle) bool {
	_, ok := e.indexes[vol]
	return ok
}

// HasAnyIndex reports whether any volume has a spatial index.
func (e *Engine) HasAnyIndex() bool { return len(e.indexes) > 0 }

// DropIndex discards the spatial index of vol, if any.
func (e *Engine) DropIndex(vol mesh.Handle) { delete(e.indexes, vol) }

// NumIndexes returns the number of indexed volumes.
func (e *Engine) NumIndexes() int { return len(e.indexes) }

// BoundingBox returns the axis-aligned bounding box of vol.
func (e *Engine) BoundingBox(vol mesh.Handle) (mesh.Box, error) {
	idx, err := e.lookup(vol)
	if err != nil {
		return mesh.Box{}, err
	}
	return idx.box, nil
}

// RayFire returns the next surface hit by the ray from origin along dir
// (a unit vector) inside vol, and the distance to it. When nothing is hit
// the surface is 0 and the distance +Inf.
func (e *Engine) RayFire(vol mesh.Handle, origin, dir mesh.Vec3, optFns ...RayOption) (mesh.Handle, float64, error) {
	opts := rayOptions{orientation: Exiting}
	for _, fn := range optFns {
		fn(&opts)
	}
	idx, err := e.lookup(vol)
	if err != nil {
		return 0, 0, err
	}

	if opts.stats != nil {
		opts.stats.BoxTests++
	}
	if _, _, ok := idx.box.Expand(e.overlap+e.precision).IntersectRay(origin, dir); !ok {
		return 0, math.Inf(1), nil
	}

	best := -1
	bestT := math.Inf(1)
	for i := range idx.facets {
		f := &idx.facets[i]
		if opts.history.Contains(f.tri) {
			continue
		}
		if opts.stats != nil {
			opts.stats.FacetsTested++
		}
		t, ok := intersectTriangle(origin, dir, f.v)
		if !ok || t < -e.overlap {
			continue
		}
		if opts.distLimit > 0 && t > opts.distLimit {
			continue
		}
		d := f.normal.Dot(dir)
		switch opts.orientation {
		case Exiting:
			if d <= 0 {
				continue
			}
		case Entering:
			if d >= 0 {
				continue
			}
		}
		if t < bestT {
			best, bestT = i, t
		}
	}
	if best < 0 {
		return 0, math.Inf(1), nil
	}
	if opts.stats != nil {
		opts.stats.Hits++
	}
	opts.history.add(idx.facets[best].tri)
	return idx.facets[best].surf, bestT, nil
}

// PointInVolume classifies pt relative to vol by firing a probe ray.
func (e *Engine) PointInVolume(vol mesh.Handle, pt mesh.Vec3, optFns ...PointOption) (Containment, error) {
	opts := pointOptions{dir: DefaultDirection}
	for _, fn := range optFns {
		fn(&opts)
	}
	dir := opts.dir.Unit()

	idx, err := e.lookup(vol)
	if err != nil {
		return Outside, err
	}
	// Volumes bounded from the inside contain everything beyond their box.
	exterior := idx.measure < 0
	if !idx.box.Expand(e.precision).Contains(pt) {
		if exterior {
			return Inside, nil
		}
		return Outside, nil
	}

	bestT := math.Inf(1)
	var bestDot float64
	for i := range idx.facets {
		f := &idx.facets[i]
		if opts.history.Contains(f.tri) {
			continue
		}
		t, ok := intersectTriangle(pt, dir, f.v)
		if !ok || t < -e.precision {
			continue
		}
		if math.Abs(t) < math.Abs(bestT) {
			bestT, bestDot = t, f.normal.Dot(dir)
		}
	}
	switch {
	case math.IsInf(bestT, 1):
		if exterior {
			return Inside, nil
		}
		return Outside, nil
	case math.Abs(bestT) <= e.precision:
		return Boundary, nil
	case bestDot > 0:
		return Inside, nil
	default:
		return Outside, nil
	}
}

// PointInVolumeSlow classifies pt by summing the solid angles of every facet
// of vol. It never reports Boundary.
func (e *Engine) PointInVolumeSlow(vol mesh.Handle, pt mesh.Vec3) (Containment, error) {
	idx, err := e.lookup(vol)
	if err != nil {
		return Outside, err
	}
	var omega float64
	for i := range idx.facets {
		f := &idx.facets[i]
		a := solidAngle(pt, f.v)
		if f.reversed {
			a = -a
		}
		omega += a
	}
	// Volumes with inward-facing boundaries (the implicit complement)
	// enclose the unbounded exterior.
	if idx.measure < 0 {
		omega += 4 * math.Pi
	}
	if omega > 2*math.Pi {
		return Inside, nil
	}
	return Outside, nil
}

func (e *Engine) surfaceFacet(surf mesh.Handle, pt mesh.Vec3, history *RayHistory) (mesh.Handle, [3]mesh.Vec3, error) {
	tris, err := e.tool.Triangles(surf)
	if err != nil {
		return 0, [3]mesh.Vec3{}, wrapNotFound(err)
	}
	if last, ok := history.LastIntersection(); ok {
		for _, tri := range tris {
			if tri == last {
				v, err := e.tool.DB().TriangleCoords(tri)
				return tri, v, wrapNotFound(err)
			}
		}
	}
	best := mesh.Handle(0)
	var bestV [3]mesh.Vec3
	bestD := math.Inf(1)
	for _, tri := range tris {
		v, err := e.tool.DB().TriangleCoords(tri)
		if err != nil {
			return 0, [3]mesh.Vec3{}, wrapNotFound(err)
		}
		if d := closestPointOnTriangle(pt, v).Sub(pt).Len(); d < bestD {
			best, bestV, bestD = tri, v, d
		}
	}
	if best == 0 {
		return 0, [3]mesh.Vec3{}, fmt.Errorf("%w: surface %d has no facets", ErrNotFound, surf)
	}
	return best, bestV, nil
}

// TestVolumeBoundary reports whether a ray at pt along dir on surf is
// entering vol (Inside) or leaving it (Outside). The facet is taken from the
// last entry of history when it belongs to surf, else the facet nearest pt.
func (e *Engine) TestVolumeBoundary(vol, surf mesh.Handle, pt, dir mesh.Vec3, history *RayHistory) (Containment, error) {
	sense, err := e.tool.Sense(surf, vol)
	if err != nil {
		return Outside, wrapNotFound(err)
	}
	_, v, err := e.surfaceFacet(surf, pt, history)
	if err != nil {
		return Outside, err
	}
	n := triangleNormal(v)
	if sense == topo.Reverse {
		n = n.Scale(-1)
	}
	if n.Dot(dir) < 0 {
		return Inside, nil
	}
	return Outside, nil
}

// ClosestToLocation returns the distance from pt to the nearest facet of vol
// and the surface owning that facet.
func (e *Engine) ClosestToLocation(vol mesh.Handle, pt mesh.Vec3) (float64, mesh.Handle, error) {
	idx, err := e.lookup(vol)
	if err != nil {
		return 0, 0, err
	}
	best := math.Inf(1)
	var surf mesh.Handle
	for i := range idx.facets {
		f := &idx.facets[i]
		if d := closestPointOnTriangle(pt, f.v).Sub(pt).Len(); d < best {
			best, surf = d, f.surf
		}
	}
	if surf == 0 {
		return 0, 0, fmt.Errorf("%w: volume %d has no facets", ErrNotFound, vol)
	}
	return best, surf, nil
}

// MeasureVolume returns the signed volume enclosed by the surfaces of vol.
// It is negative for volumes bounded from the inside, such as the implicit
// complement.
func (e *Engine) MeasureVolume(vol mesh.Handle) (float64, error) {
	idx, err := e.lookup(vol)
	if err != nil {
		return 0, err
	}
	return idx.measure, nil
}

// MeasureArea returns the total facet area of surf.
func (e *Engine) MeasureArea(surf mesh.Handle) (float64, error) {
	tris, err := e.tool.Triangles(surf)
	if err != nil {
		return 0, wrapNotFound(err)
	}
	var total float64
	for _, tri := range tris {
		v, err := e.tool.DB().TriangleCoords(tri)
		if err != nil {
			return 0, wrapNotFound(err)
		}
		total += triangleArea(v)
	}
	return total, nil
}

// SurfaceNormal returns the unit normal of surf near pt, using the last
// facet of history when it belongs to surf.
func (e *Engine) SurfaceNormal(surf mesh.Handle, pt mesh.Vec3, history *RayHistory) (mesh.Vec3, error) {
	_, v, err := e.surfaceFacet(surf, pt, history)
	if err != nil {
		return mesh.Vec3{}, err
	}
	return triangleNormal(v), nil
}
