package query

import (
	"math"
	"testing"

	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/testutil"
	"github.com/hupe1980/brepq/topo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cubeEngine(t *testing.T) (*Engine, mesh.Handle, mesh.Handle) {
	t.Helper()
	m := testutil.NewModel()
	vol := m.AddCube(mesh.Vec3{-1, -1, -1}, mesh.Vec3{1, 1, 1})
	return New(m.Tool), vol, m.Surfaces[0]
}

func TestEngine_Index(t *testing.T) {
	e, vol, _ := cubeEngine(t)

	assert.False(t, e.HasAnyIndex())
	require.NoError(t, e.BuildIndexes())
	assert.True(t, e.HasIndex(vol))
	assert.Equal(t, 1, e.NumIndexes())

	box, err := e.BoundingBox(vol)
	require.NoError(t, err)
	assert.Equal(t, mesh.Vec3{-1, -1, -1}, box.Min)
	assert.Equal(t, mesh.Vec3{1, 1, 1}, box.Max)

	e.DropIndex(vol)
	assert.False(t, e.HasIndex(vol))

	_, err = e.MeasureVolume(vol)
	require.NoError(t, err)
	assert.False(t, e.HasIndex(vol), "queries must not index lazily")
}

func TestEngine_RayFire(t *testing.T) {
	e, vol, surf := cubeEngine(t)
	require.NoError(t, e.BuildIndexes())

	var h RayHistory
	var stats TraversalStats
	got, dist, err := e.RayFire(vol, mesh.Vec3{0, 0, 0}, mesh.Vec3{1, 0, 0}, WithHistory(&h), WithStats(&stats))
	require.NoError(t, err)
	assert.Equal(t, surf, got)
	assert.InDelta(t, 1.0, dist, 1e-12)
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 1, stats.Hits)
	assert.Positive(t, stats.FacetsTested)

	// Entering hits only: from outside toward the cube.
	got, dist, err = e.RayFire(vol, mesh.Vec3{-5, 0.1, 0.2}, mesh.Vec3{1, 0, 0}, WithOrientation(Entering))
	require.NoError(t, err)
	assert.Equal(t, surf, got)
	assert.InDelta(t, 4.0, dist, 1e-12)

	// Distance limit shorter than the wall.
	got, dist, err = e.RayFire(vol, mesh.Vec3{0, 0, 0}, mesh.Vec3{0, 1, 0}, WithDistanceLimit(0.5))
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.True(t, math.IsInf(dist, 1))

	// Miss the box entirely.
	got, _, err = e.RayFire(vol, mesh.Vec3{0, 5, 0}, mesh.Vec3{1, 0, 0})
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestEngine_RayFireHistorySkipsCrossedFacet(t *testing.T) {
	e, vol, _ := cubeEngine(t)

	var h RayHistory
	_, _, err := e.RayFire(vol, mesh.Vec3{0.1, 0.2, 0}, mesh.Vec3{0, 0, 1}, WithHistory(&h))
	require.NoError(t, err)
	first, ok := h.LastIntersection()
	require.True(t, ok)

	// Fire again from the hit point: the crossed facet is skipped.
	got, dist, err := e.RayFire(vol, mesh.Vec3{0.1, 0.2, 1}, mesh.Vec3{0, 0, 1}, WithHistory(&h), WithOrientation(AnyOrientation))
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.True(t, math.IsInf(dist, 1))
	assert.Equal(t, 1, h.Len())
	last, _ := h.LastIntersection()
	assert.Equal(t, first, last)
}

func TestEngine_PointInVolume(t *testing.T) {
	e, vol, _ := cubeEngine(t)
	require.NoError(t, e.BuildIndexes())

	tests := []struct {
		name string
		pt   mesh.Vec3
		want Containment
	}{
		{"center", mesh.Vec3{0, 0, 0}, Inside},
		{"off-center", mesh.Vec3{0.3, -0.7, 0.5}, Inside},
		{"outside box", mesh.Vec3{3, 0, 0}, Outside},
		{"beside", mesh.Vec3{1.5, 0, 0}, Outside},
		{"on face", mesh.Vec3{1, 0.2, 0.1}, Boundary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.PointInVolume(vol, tt.pt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := e.PointInVolume(vol, mesh.Vec3{-0.5, 0, 0}, WithDirection(mesh.Vec3{-1, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, Inside, got)
}

func TestEngine_PointInVolumeSlow(t *testing.T) {
	e, vol, _ := cubeEngine(t)

	got, err := e.PointInVolumeSlow(vol, mesh.Vec3{0.2, 0.2, 0.2})
	require.NoError(t, err)
	assert.Equal(t, Inside, got)

	got, err = e.PointInVolumeSlow(vol, mesh.Vec3{2, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, Outside, got)
}

func TestEngine_ImplicitComplement(t *testing.T) {
	m := testutil.NewModel()
	vol := m.AddCube(mesh.Vec3{-1, -1, -1}, mesh.Vec3{1, 1, 1})
	ic, err := m.Tool.SetupImplicitComplement()
	require.NoError(t, err)
	e := New(m.Tool)

	v, err := e.MeasureVolume(ic)
	require.NoError(t, err)
	assert.InDelta(t, -8.0, v, 1e-9)

	got, err := e.PointInVolume(ic, mesh.Vec3{5, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, Inside, got)

	got, err = e.PointInVolume(ic, mesh.Vec3{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, Outside, got)

	got, err = e.PointInVolumeSlow(ic, mesh.Vec3{5, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, Inside, got)

	got, err = e.PointInVolumeSlow(ic, mesh.Vec3{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, Outside, got)

	// Leaving the cube enters the complement.
	var h RayHistory
	surf, dist, err := e.RayFire(vol, mesh.Vec3{0, 0, 0}, mesh.Vec3{0, 0, 1}, WithHistory(&h))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dist, 1e-12)
	next, err := m.Tool.NextVolume(surf, vol)
	require.NoError(t, err)
	assert.Equal(t, ic, next)

	c, err := e.TestVolumeBoundary(ic, surf, mesh.Vec3{0, 0, 1}, mesh.Vec3{0, 0, 1}, &h)
	require.NoError(t, err)
	assert.Equal(t, Inside, c)
}

func TestEngine_Measures(t *testing.T) {
	e, vol, surf := cubeEngine(t)

	v, err := e.MeasureVolume(vol)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, v, 1e-9)

	a, err := e.MeasureArea(surf)
	require.NoError(t, err)
	assert.InDelta(t, 24.0, a, 1e-9)

	d, s, err := e.ClosestToLocation(vol, mesh.Vec3{0.5, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, surf, s)
	assert.InDelta(t, 0.5, d, 1e-12)

	d, _, err = e.ClosestToLocation(vol, mesh.Vec3{4, 5, 1})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-12)

	n, err := e.SurfaceNormal(surf, mesh.Vec3{0, 0, 1}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, n[2], 1e-12)
}

func TestEngine_TestVolumeBoundary(t *testing.T) {
	e, vol, surf := cubeEngine(t)

	c, err := e.TestVolumeBoundary(vol, surf, mesh.Vec3{1, 0, 0}, mesh.Vec3{-1, 0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, Inside, c)

	c, err = e.TestVolumeBoundary(vol, surf, mesh.Vec3{1, 0, 0}, mesh.Vec3{1, 0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, Outside, c)
}

func TestEngine_NotFound(t *testing.T) {
	e, _, surf := cubeEngine(t)

	_, _, err := e.RayFire(9999, mesh.Vec3{}, mesh.Vec3{1, 0, 0})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = e.TestVolumeBoundary(9999, surf, mesh.Vec3{}, mesh.Vec3{1, 0, 0}, nil)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, topo.ErrNotFound)
}

func TestRayHistory(t *testing.T) {
	var h RayHistory
	require.ErrorIs(t, h.RollbackLastIntersection(), ErrNotFound)
	require.ErrorIs(t, h.ResetToLastIntersection(), ErrNotFound)

	h.add(1)
	h.add(2)
	h.add(3)
	assert.True(t, h.Contains(2))
	assert.Equal(t, []mesh.Handle{1, 2, 3}, h.Facets())

	require.NoError(t, h.RollbackLastIntersection())
	last, ok := h.LastIntersection()
	require.True(t, ok)
	assert.Equal(t, mesh.Handle(2), last)

	require.NoError(t, h.ResetToLastIntersection())
	assert.Equal(t, []mesh.Handle{2}, h.Facets())

	saved := h.Clone()
	h.add(7)
	assert.Equal(t, 1, saved.Len())
	assert.False(t, saved.Contains(7))

	h.Reset()
	assert.Zero(t, h.Len())

	var nilHistory *RayHistory
	assert.Zero(t, nilHistory.Len())
	assert.False(t, nilHistory.Contains(1))
}
