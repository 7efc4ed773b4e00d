// Package synth adds synthetic volumes to a model: the graveyard that bounds
// the whole geometry, and the rebuild of the implicit complement that must
// follow any change to the explicit volume set.
package synth

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/topo"
)

const (
	// DefaultMargin is the gap between the model, the inner box and the outer box.
	DefaultMargin = 10.0

	// GraveyardName is the NAME of the group holding the graveyard volume.
	GraveyardName = "mat:Graveyard"
)

// ErrInvalidGeometry is returned when a box has a non-positive extent.
var ErrInvalidGeometry = errors.New("synth: invalid geometry")

// Indexer is the part of a spatial-query engine the synthesizer drives.
type Indexer interface {
	BoundingBox(vol mesh.Handle) (mesh.Box, error)
	HasIndex(vol mesh.Handle) bool
	HasAnyIndex() bool
	BuildIndex(vol mesh.Handle) error
	DropIndex(vol mesh.Handle)
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithMargin overrides DefaultMargin.
func WithMargin(m float64) Option {
	return func(s *Synthesizer) {
		s.margin = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Synthesizer mutates the shared topology. It must run before the topology
// is handed to other goroutines.
type Synthesizer struct {
	tool   *topo.Tool
	index  Indexer
	margin float64
	logger *slog.Logger
}

// New creates a Synthesizer.
func New(tool *topo.Tool, index Indexer, optFns ...Option) *Synthesizer {
	s := &Synthesizer{
		tool:   tool,
		index:  index,
		margin: DefaultMargin,
		logger: slog.Default(),
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// boxConn lists the 12 triangles of a box over its corners. Corners 0-3 are
// the z-min face counter-clockwise from (min,min); 4-7 repeat them at z-max.
// This winding gives outward normals.
var boxConn = [12][3]int{
	{0, 3, 1}, {2, 1, 3},
	{1, 2, 5}, {6, 5, 2},
	{0, 1, 4}, {5, 4, 1},
	{3, 0, 7}, {4, 7, 0},
	{2, 3, 6}, {7, 6, 3},
	{4, 5, 7}, {6, 7, 5},
}

// BoxSurface creates a closed box surface over b and registers it as a
// geometric surface. normalsOut selects outward (true) or inward winding.
func (s *Synthesizer) BoxSurface(b mesh.Box, normalsOut bool) (mesh.Handle, error) {
	if b.Degenerate() {
		return 0, fmt.Errorf("%w: box %v..%v", ErrInvalidGeometry, b.Min, b.Max)
	}
	db := s.tool.DB()
	lo, hi := b.Min, b.Max
	corners := [8]mesh.Vec3{
		{lo[0], lo[1], lo[2]}, {hi[0], lo[1], lo[2]}, {hi[0], hi[1], lo[2]}, {lo[0], hi[1], lo[2]},
		{lo[0], lo[1], hi[2]}, {hi[0], lo[1], hi[2]}, {hi[0], hi[1], hi[2]}, {lo[0], hi[1], hi[2]},
	}
	var verts [8]mesh.Handle
	for i, c := range corners {
		verts[i] = db.CreateVertex(c)
	}

	tris := make([]mesh.Handle, 0, len(boxConn))
	for _, c := range boxConn {
		v0, v1, v2 := verts[c[0]], verts[c[1]], verts[c[2]]
		if !normalsOut {
			v1, v2 = v2, v1
		}
		tri, err := db.CreateTriangle(v0, v1, v2)
		if err != nil {
			return 0, err
		}
		tris = append(tris, tri)
	}

	surf := db.CreateSet()
	if err := db.AddEntities(surf, tris...); err != nil {
		return 0, err
	}
	if err := s.tool.AddGeoSet(surf, topo.DimSurface); err != nil {
		return 0, err
	}
	return surf, nil
}

// ModelBox returns the union of the bounding boxes of volumes.
func (s *Synthesizer) ModelBox(volumes []mesh.Handle) (mesh.Box, error) {
	box := mesh.EmptyBox()
	for _, vol := range volumes {
		b, err := s.index.BoundingBox(vol)
		if err != nil {
			return mesh.Box{}, fmt.Errorf("synth: bounding box of volume %d: %w", vol, err)
		}
		box = box.Union(b)
	}
	return box, nil
}

// ContainingVolume creates a volume bounded by two nested box surfaces
// around volumes: the inner box lies margin outside the model with inward
// normals, the outer box another margin further out with outward normals.
// Both surfaces have forward sense. No entity is created when either box
// would be degenerate.
func (s *Synthesizer) ContainingVolume(volumes []mesh.Handle) (vol, inner, outer mesh.Handle, err error) {
	model, err := s.ModelBox(volumes)
	if err != nil {
		return 0, 0, 0, err
	}
	innerBox := model.Expand(s.margin)
	outerBox := innerBox.Expand(s.margin)
	for _, b := range []mesh.Box{innerBox, outerBox} {
		if b.Degenerate() {
			return 0, 0, 0, fmt.Errorf("%w: containing box %v..%v", ErrInvalidGeometry, b.Min, b.Max)
		}
	}

	if inner, err = s.BoxSurface(innerBox, false); err != nil {
		return 0, 0, 0, err
	}
	if outer, err = s.BoxSurface(outerBox, true); err != nil {
		return 0, 0, 0, err
	}

	vol = s.tool.DB().CreateSet()
	if err := s.tool.AddGeoSet(vol, topo.DimVolume); err != nil {
		return 0, 0, 0, err
	}
	for _, surf := range []mesh.Handle{inner, outer} {
		if err := s.tool.SetSense(surf, vol, topo.Forward); err != nil {
			return 0, 0, 0, err
		}
	}
	return vol, inner, outer, nil
}

// graveyardGroup returns the existing graveyard group or creates one.
func (s *Synthesizer) graveyardGroup() (mesh.Handle, error) {
	db := s.tool.DB()
	groups, err := s.tool.Entities(topo.DimGroup)
	if err != nil {
		return 0, err
	}
	for _, g := range groups {
		name, err := db.String(s.tool.NameTag(), g)
		if err != nil {
			continue
		}
		cat, err := db.String(s.tool.CategoryTag(), g)
		if err == nil && name == GraveyardName && cat == topo.DimGroup.Category() {
			return g, nil
		}
	}

	g := db.CreateSet()
	if err := s.tool.AddGeoSet(g, topo.DimGroup); err != nil {
		return 0, err
	}
	if err := db.SetString(s.tool.NameTag(), g, GraveyardName); err != nil {
		return 0, err
	}
	return g, nil
}

// Graveyard adds a containing volume around every explicit volume, files it
// under the graveyard group, indexes it when the model is already indexed,
// and repairs the implicit complement. Calling it twice nests a second
// graveyard around the first.
func (s *Synthesizer) Graveyard() (mesh.Handle, error) {
	volumes, err := s.tool.Entities(topo.DimVolume)
	if err != nil {
		return 0, err
	}
	volumes = slices.DeleteFunc(volumes, s.tool.IsImplicitComplement)

	vol, _, _, err := s.ContainingVolume(volumes)
	if err != nil {
		return 0, fmt.Errorf("synth: create containing volume: %w", err)
	}

	group, err := s.graveyardGroup()
	if err != nil {
		return 0, fmt.Errorf("synth: graveyard group: %w", err)
	}
	if err := s.tool.DB().AddEntities(group, vol); err != nil {
		return 0, err
	}

	if s.index.HasAnyIndex() {
		if err := s.index.BuildIndex(vol); err != nil {
			return 0, fmt.Errorf("synth: index graveyard: %w", err)
		}
	}

	if err := s.RepairImplicitComplement(); err != nil {
		return 0, err
	}
	s.logger.Debug("graveyard created", "volume", vol, "group", group, "margin", s.margin)
	return vol, nil
}

// RepairImplicitComplement discards and recreates the implicit complement.
// The new complement is indexed only if the old one was. It is a no-op when
// no complement exists.
func (s *Synthesizer) RepairImplicitComplement() error {
	old, ok := s.tool.ImplicitComplement()
	if !ok {
		return nil
	}
	indexed := s.index.HasIndex(old)
	s.index.DropIndex(old)

	if err := s.tool.DeleteImplicitComplement(); err != nil {
		return fmt.Errorf("synth: delete implicit complement: %w", err)
	}
	ic, err := s.tool.SetupImplicitComplement()
	if err != nil {
		return fmt.Errorf("synth: recreate implicit complement: %w", err)
	}
	if indexed {
		if err := s.index.BuildIndex(ic); err != nil {
			return fmt.Errorf("synth: index implicit complement: %w", err)
		}
	}
	s.logger.Debug("implicit complement rebuilt", "old", old, "new", ic, "indexed", indexed)
	return nil
}
