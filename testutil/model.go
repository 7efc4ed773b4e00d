package testutil

import (
	"fmt"
	"math"

	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/topo"
)

// Model is a faceted test model built from axis-aligned cubes.
type Model struct {
	DB       *mesh.DB
	Tool     *topo.Tool
	Volumes  []mesh.Handle
	Surfaces []mesh.Handle
	Groups   []mesh.Handle
}

// NewModel creates an empty model.
func NewModel() *Model {
	db := mesh.New()
	return &Model{DB: db, Tool: topo.New(db)}
}

var cubeConn = [12][3]int{
	{0, 3, 1}, {2, 1, 3},
	{1, 2, 5}, {6, 5, 2},
	{0, 1, 4}, {5, 4, 1},
	{3, 0, 7}, {4, 7, 0},
	{2, 3, 6}, {7, 6, 3},
	{4, 5, 7}, {6, 7, 5},
}

// AddCube adds a volume bounded by one outward-facing box surface and
// returns the volume. It panics on error; it is meant for tests.
func (m *Model) AddCube(lo, hi mesh.Vec3) mesh.Handle {
	corners := [8]mesh.Vec3{
		{lo[0], lo[1], lo[2]}, {hi[0], lo[1], lo[2]}, {hi[0], hi[1], lo[2]}, {lo[0], hi[1], lo[2]},
		{lo[0], lo[1], hi[2]}, {hi[0], lo[1], hi[2]}, {hi[0], hi[1], hi[2]}, {lo[0], hi[1], hi[2]},
	}
	var verts [8]mesh.Handle
	for i, c := range corners {
		verts[i] = m.DB.CreateVertex(c)
	}
	surf := m.DB.CreateSet()
	for _, c := range cubeConn {
		tri, err := m.DB.CreateTriangle(verts[c[0]], verts[c[1]], verts[c[2]])
		must(err)
		must(m.DB.AddEntities(surf, tri))
	}
	must(m.Tool.AddGeoSet(surf, topo.DimSurface))

	vol := m.DB.CreateSet()
	must(m.Tool.AddGeoSet(vol, topo.DimVolume))
	must(m.Tool.SetSense(surf, vol, topo.Forward))

	m.Volumes = append(m.Volumes, vol)
	m.Surfaces = append(m.Surfaces, surf)
	return vol
}

// AddGroup adds a metadata group called name containing members.
func (m *Model) AddGroup(name string, members ...mesh.Handle) mesh.Handle {
	g := m.DB.CreateSet()
	must(m.DB.SetString(m.Tool.NameTag(), g, name))
	must(m.Tool.AddGeoSet(g, topo.DimGroup))
	if len(members) > 0 {
		must(m.DB.AddEntities(g, members...))
	}
	m.Groups = append(m.Groups, g)
	return g
}

func must(err error) {
	if err != nil {
		panic(fmt.Errorf("testutil: %w", err))
	}
}

// CubeVolume returns the exact volume of the axis-aligned box [min, max].
func CubeVolume(min, max mesh.Vec3) float64 {
	d := max.Sub(min)
	return math.Abs(d[0] * d[1] * d[2])
}
