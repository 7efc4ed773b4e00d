// Package topo layers geometric topology over a mesh.DB.
//
// Geometric entities are entity sets carrying a GEOM_DIMENSION tag:
// vertices (0), curves (1), surfaces (2), volumes (3) and groups (4).
// Surfaces are children of the volumes they bound; the orientation of a
// surface relative to each volume is stored in GEOM_SENSE_2 as a
// (forward, reverse) pair of volume handles.
//
// A Tool is safe for concurrent use.
package topo

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/brepq/mesh"
)

// Tag names used by the topology layer.
const (
	GeomDimensionTag = "GEOM_DIMENSION"
	GlobalIDTag      = "GLOBAL_ID"
	CategoryTag      = "CATEGORY"
	NameTag          = "NAME"
	SenseTag         = "GEOM_SENSE_2"
)

// ImplicitComplementName is the NAME of the implicit complement volume.
const ImplicitComplementName = "impl_complement"

// Dimension of a geometric entity set.
type Dimension int

const (
	DimVertex  Dimension = 0
	DimCurve   Dimension = 1
	DimSurface Dimension = 2
	DimVolume  Dimension = 3
	// DimGroup marks metadata groups.
	DimGroup Dimension = 4
)

// Category returns the CATEGORY string used for sets of dimension d.
func (d Dimension) Category() string {
	switch d {
	case DimVertex:
		return "Vertex"
	case DimCurve:
		return "Curve"
	case DimSurface:
		return "Surface"
	case DimVolume:
		return "Volume"
	case DimGroup:
		return "Group"
	default:
		return ""
	}
}

func (d Dimension) valid() bool { return d >= DimVertex && d <= DimGroup }

// Sense is the orientation of a surface relative to a volume.
type Sense int

const (
	Reverse Sense = -1
	// Both means the volume lies on both sides of the surface.
	Both    Sense = 0
	Forward Sense = 1
)

var (
	// ErrNotFound is returned when a geometric set, id, or sense does not exist.
	ErrNotFound = errors.New("topo: not found")
	// ErrInvalidDimension is returned for dimensions outside 0..4.
	ErrInvalidDimension = errors.New("topo: invalid dimension")
)

// Tool tracks the geometric sets of one mesh.DB.
type Tool struct {
	db *mesh.DB

	dimTag   *mesh.Tag
	idTag    *mesh.Tag
	catTag   *mesh.Tag
	nameTag  *mesh.Tag
	senseTag *mesh.Tag

	mu     sync.RWMutex
	sets   [DimGroup + 1][]mesh.Handle
	maxID  [DimGroup + 1]int64
	ic     mesh.Handle
	loaded bool
}

// New creates a Tool over db. Call FindGeomSets to pick up sets that already
// exist in db.
func New(db *mesh.DB) *Tool {
	return &Tool{
		db:       db,
		dimTag:   db.MustTag(GeomDimensionTag),
		idTag:    db.MustTag(GlobalIDTag),
		catTag:   db.MustTag(CategoryTag),
		nameTag:  db.MustTag(NameTag),
		senseTag: db.MustTag(SenseTag),
	}
}

// DB returns the underlying mesh database.
func (t *Tool) DB() *mesh.DB { return t.db }

// NameTag returns the NAME tag handle.
func (t *Tool) NameTag() *mesh.Tag { return t.nameTag }

// CategoryTag returns the CATEGORY tag handle.
func (t *Tool) CategoryTag() *mesh.Tag { return t.catTag }

// FindGeomSets rescans the database for geometric sets. Sets with a
// CATEGORY of "Group" but no dimension tag are treated as groups.
// A volume named ImplicitComplementName is recorded as the implicit complement.
func (t *Tool) FindGeomSets() error {
	tagged, err := t.db.TaggedEntities(t.dimTag)
	if err != nil {
		return err
	}
	var sets [DimGroup + 1][]mesh.Handle
	var maxID [DimGroup + 1]int64
	var ic mesh.Handle
	seen := make(map[mesh.Handle]struct{}, len(tagged))

	for _, h := range tagged {
		d, err := t.db.Int(t.dimTag, h)
		if err != nil {
			return err
		}
		dim := Dimension(d)
		if !dim.valid() {
			return fmt.Errorf("%w: set %d has dimension %d", ErrInvalidDimension, h, d)
		}
		sets[dim] = append(sets[dim], h)
		seen[h] = struct{}{}
		if id, err := t.db.Int(t.idTag, h); err == nil && id > maxID[dim] {
			maxID[dim] = id
		}
		if dim == DimVolume {
			if name, err := t.db.String(t.nameTag, h); err == nil && name == ImplicitComplementName {
				ic = h
			}
		}
	}

	cats, err := t.db.EntitiesWithValue(t.catTag, []byte(DimGroup.Category()))
	if err != nil {
		return err
	}
	for _, h := range cats {
		if _, ok := seen[h]; !ok {
			sets[DimGroup] = append(sets[DimGroup], h)
		}
	}
	slices.Sort(sets[DimGroup])

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sets = sets
	t.maxID = maxID
	t.ic = ic
	t.loaded = true
	return nil
}

// Loaded reports whether FindGeomSets has run.
func (t *Tool) Loaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaded
}

// AddGeoSet registers set as a geometric set of dimension dim. It sets the
// dimension and category tags and assigns the next global id unless the set
// already carries one. Registering a set twice is a no-op.
func (t *Tool) AddGeoSet(set mesh.Handle, dim Dimension) error {
	if !dim.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if slices.Contains(t.sets[dim], set) {
		return nil
	}
	if err := t.db.SetInt(t.dimTag, set, int64(dim)); err != nil {
		return err
	}
	if err := t.db.SetString(t.catTag, set, dim.Category()); err != nil {
		return err
	}
	if id, err := t.db.Int(t.idTag, set); err == nil {
		t.maxID[dim] = max(t.maxID[dim], id)
	} else {
		t.maxID[dim]++
		if err := t.db.SetInt(t.idTag, set, t.maxID[dim]); err != nil {
			return err
		}
	}
	t.sets[dim] = append(t.sets[dim], set)
	return nil
}

// Entities returns the geometric sets of dimension dim in registration order.
func (t *Tool) Entities(dim Dimension) ([]mesh.Handle, error) {
	if !dim.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.sets[dim]), nil
}

// Dimension returns the geometric dimension of set.
func (t *Tool) Dimension(set mesh.Handle) (Dimension, error) {
	d, err := t.db.Int(t.dimTag, set)
	if err != nil {
		if errors.Is(err, mesh.ErrNotFound) {
			return 0, fmt.Errorf("%w: set %d is not geometric", ErrNotFound, set)
		}
		return 0, err
	}
	return Dimension(d), nil
}

// GlobalID returns the GLOBAL_ID of set.
func (t *Tool) GlobalID(set mesh.Handle) (int, error) {
	id, err := t.db.Int(t.idTag, set)
	if err != nil {
		if errors.Is(err, mesh.ErrNotFound) {
			return 0, fmt.Errorf("%w: set %d has no global id", ErrNotFound, set)
		}
		return 0, err
	}
	return int(id), nil
}

// EntityByID returns the set of dimension dim whose GLOBAL_ID is id.
func (t *Tool) EntityByID(dim Dimension, id int) (mesh.Handle, error) {
	sets, err := t.Entities(dim)
	if err != nil {
		return 0, err
	}
	for _, h := range sets {
		if gid, err := t.db.Int(t.idTag, h); err == nil && int(gid) == id {
			return h, nil
		}
	}
	return 0, fmt.Errorf("%w: dimension %d id %d", ErrNotFound, dim, id)
}

// Surfaces returns the surfaces bounding vol.
func (t *Tool) Surfaces(vol mesh.Handle) ([]mesh.Handle, error) {
	children, err := t.db.Children(vol)
	if err != nil {
		return nil, err
	}
	out := children[:0]
	for _, c := range children {
		if d, err := t.Dimension(c); err == nil && d == DimSurface {
			out = append(out, c)
		}
	}
	return out, nil
}

// Triangles returns the facets of surf.
func (t *Tool) Triangles(surf mesh.Handle) ([]mesh.Handle, error) {
	return t.db.MembersOfType(surf, mesh.TypeTriangle)
}

func (t *Tool) senses(surf mesh.Handle) ([2]mesh.Handle, error) {
	hs, err := t.db.Handles(t.senseTag, surf)
	if err != nil {
		if errors.Is(err, mesh.ErrNotFound) {
			return [2]mesh.Handle{}, nil
		}
		return [2]mesh.Handle{}, err
	}
	var out [2]mesh.Handle
	copy(out[:], hs)
	return out, nil
}

// SetSense records the orientation of surf relative to vol and links them
// as parent and child. Both fills the forward and reverse slots.
func (t *Tool) SetSense(surf, vol mesh.Handle, sense Sense) error {
	pair, err := t.senses(surf)
	if err != nil {
		return err
	}
	switch sense {
	case Forward:
		pair[0] = vol
	case Reverse:
		pair[1] = vol
	case Both:
		pair[0], pair[1] = vol, vol
	default:
		return fmt.Errorf("topo: invalid sense %d", sense)
	}
	if err := t.db.SetHandles(t.senseTag, surf, pair[0], pair[1]); err != nil {
		return err
	}
	return t.db.AddParentChild(vol, surf)
}

// Sense returns the orientation of surf relative to vol.
func (t *Tool) Sense(surf, vol mesh.Handle) (Sense, error) {
	pair, err := t.senses(surf)
	if err != nil {
		return 0, err
	}
	switch {
	case pair[0] == vol && pair[1] == vol:
		return Both, nil
	case pair[0] == vol:
		return Forward, nil
	case pair[1] == vol:
		return Reverse, nil
	default:
		return 0, fmt.Errorf("%w: surface %d does not bound volume %d", ErrNotFound, surf, vol)
	}
}

// SurfaceSenses returns the volumes on either side of surf with their senses.
func (t *Tool) SurfaceSenses(surf mesh.Handle) ([]mesh.Handle, []Sense, error) {
	pair, err := t.senses(surf)
	if err != nil {
		return nil, nil, err
	}
	var vols []mesh.Handle
	var senses []Sense
	if pair[0] != 0 {
		vols = append(vols, pair[0])
		senses = append(senses, Forward)
	}
	if pair[1] != 0 {
		vols = append(vols, pair[1])
		senses = append(senses, Reverse)
	}
	return vols, senses, nil
}

// NextVolume returns the volume on the other side of surf from vol.
func (t *Tool) NextVolume(surf, vol mesh.Handle) (mesh.Handle, error) {
	pair, err := t.senses(surf)
	if err != nil {
		return 0, err
	}
	var next mesh.Handle
	switch vol {
	case pair[0]:
		next = pair[1]
	case pair[1]:
		next = pair[0]
	default:
		return 0, fmt.Errorf("%w: surface %d does not bound volume %d", ErrNotFound, surf, vol)
	}
	if next == 0 {
		return 0, fmt.Errorf("%w: no volume across surface %d", ErrNotFound, surf)
	}
	return next, nil
}
