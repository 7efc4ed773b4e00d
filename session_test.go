package brepq

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brepq/blobstore"
	"github.com/hupe1980/brepq/codec"
	"github.com/hupe1980/brepq/internal/resource"
	"github.com/hupe1980/brepq/internal/synth"
	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/props"
	"github.com/hupe1980/brepq/query"
	"github.com/hupe1980/brepq/testutil"
	"github.com/hupe1980/brepq/topo"
)

// twoCubes builds a model with two disjoint unit-ish cubes and a material group.
func twoCubes(t *testing.T) *testutil.Model {
	t.Helper()
	m := testutil.NewModel()
	a := m.AddCube(mesh.Vec3{-1, -1, -1}, mesh.Vec3{1, 1, 1})
	b := m.AddCube(mesh.Vec3{3, -1, -1}, mesh.Vec3{5, 1, 1})
	m.AddGroup("mat:steel/rho:7.8", a)
	m.AddGroup("mat:water", b)
	m.AddGroup("boundary:reflecting", m.Surfaces[0])
	return m
}

func writeModel(t *testing.T, m *testutil.Model) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model"+mesh.FileExtension)
	s := NewSession(WithTopology(m.Tool))
	require.NoError(t, s.WriteMesh(t.Context(), path))
	return path
}

func TestSession_LoadInit(t *testing.T) {
	path := writeModel(t, twoCubes(t))

	metrics := &BasicMetricsCollector{}
	s := NewSession(WithMetricsCollector(metrics))
	require.NoError(t, s.Load(t.Context(), path))
	require.NoError(t, s.Init(t.Context()))

	// Two cubes, the graveyard and the implicit complement.
	assert.Equal(t, 4, s.NumEntities(topo.DimVolume))
	// Two cube surfaces and the two graveyard boxes.
	assert.Equal(t, 4, s.NumEntities(topo.DimSurface))

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.LoadCount)
	assert.Positive(t, stats.LoadBytes)
	assert.Equal(t, int64(1), stats.InitCount)
	assert.Zero(t, stats.InitErrors)

	for i := 1; i <= s.NumEntities(topo.DimVolume); i++ {
		vol, err := s.EntityByIndex(topo.DimVolume, i)
		require.NoError(t, err)
		assert.True(t, s.HasIndex(vol), "volume %d", i)

		idx, err := s.IndexOf(vol)
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}
}

func TestSession_LoadFrom(t *testing.T) {
	m := twoCubes(t)
	store := blobstore.NewMemoryStore()
	src := NewSession(WithTopology(m.Tool), WithCompression(mesh.CompressionLZ4), WithCodec(codec.GoJSON{}))
	require.NoError(t, src.WriteTo(t.Context(), store, "models/two-cubes.bgm"))

	s := NewSession()
	require.NoError(t, s.LoadFrom(t.Context(), store, "models/two-cubes.bgm"))
	require.NoError(t, s.Init(t.Context()))

	vol, err := s.EntityByID(topo.DimVolume, 1)
	require.NoError(t, err)
	v, err := s.MeasureVolume(vol)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, v, 1e-9)
}

func TestSession_LoadMissing(t *testing.T) {
	s := NewSession()

	err := s.Load(t.Context(), filepath.Join(t.TempDir(), "missing.bgm"))
	require.ErrorIs(t, err, ErrIoFailure)

	err = s.LoadFrom(t.Context(), blobstore.NewMemoryStore(), "missing.bgm")
	require.ErrorIs(t, err, ErrIoFailure)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSession_LoadCorrupt(t *testing.T) {
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(t.Context(), "bad.bgm", []byte("not a geometry file")))

	s := NewSession()
	err := s.LoadFrom(t.Context(), store, "bad.bgm")
	require.ErrorIs(t, err, ErrIoFailure)
}

func TestSession_LoadOverMemoryLimit(t *testing.T) {
	path := writeModel(t, twoCubes(t))
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 16})

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	s := NewSession(WithResourceController(rc))
	err := s.Load(ctx, path)
	require.ErrorIs(t, err, ErrIoFailure)
	require.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, rc.MemoryUsage())
}

func TestSession_FacetingTolerance(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		s := NewSession(WithTopology(twoCubes(t).Tool))
		require.NoError(t, s.LoadExisting())
		assert.Equal(t, DefaultFacetingTolerance, s.FacetingTolerance())
	})

	t.Run("tagged set", func(t *testing.T) {
		m := twoCubes(t)
		tag := m.DB.MustTag(FacetingToleranceTag)
		holder := m.DB.CreateSet()
		require.NoError(t, m.DB.SetFloat64(tag, holder, 0.25))

		path := writeModel(t, m)
		s := NewSession()
		require.NoError(t, s.Load(t.Context(), path))
		assert.Equal(t, 0.25, s.FacetingTolerance())
	})

	t.Run("root", func(t *testing.T) {
		m := twoCubes(t)
		tag := m.DB.MustTag(FacetingToleranceTag)
		require.NoError(t, m.DB.SetFloat64(tag, mesh.Root, 0.5))

		s := NewSession(WithTopology(m.Tool))
		require.NoError(t, s.LoadExisting())
		assert.Equal(t, 0.5, s.FacetingTolerance())
	})

	t.Run("non-positive ignored", func(t *testing.T) {
		m := twoCubes(t)
		tag := m.DB.MustTag(FacetingToleranceTag)
		require.NoError(t, m.DB.SetFloat64(tag, mesh.Root, 0))

		s := NewSession(WithTopology(m.Tool), WithDefaultFacetingTolerance(0.01))
		require.NoError(t, s.LoadExisting())
		assert.Equal(t, 0.01, s.FacetingTolerance())
	})
}

func TestSession_Graveyard(t *testing.T) {
	m := twoCubes(t)
	s := NewSession(WithTopology(m.Tool), WithGraveyardMargin(2))
	require.NoError(t, s.Init(t.Context()))

	require.NoError(t, s.ParseProperties(t.Context(), []string{"mat"}, nil, props.DefaultDelimiters))
	graves, err := s.Properties().Entities("mat", props.WithValue("Graveyard"))
	require.NoError(t, err)
	require.Len(t, graves, 1)

	// Outside both cubes but inside the graveyard's inner box the point
	// belongs to the implicit complement.
	var ic mesh.Handle
	for i := 1; i <= s.NumEntities(topo.DimVolume); i++ {
		vol, err := s.EntityByIndex(topo.DimVolume, i)
		require.NoError(t, err)
		if s.IsImplicitComplement(vol) {
			ic = vol
		}
	}
	require.NotZero(t, ic)
	c, err := s.PointInVolume(ic, mesh.Vec3{2, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, query.Inside, c)

	c, err = s.PointInVolume(graves[0], mesh.Vec3{2, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, query.Outside, c)
}

func TestSession_WithoutGraveyard(t *testing.T) {
	s := NewSession(WithTopology(twoCubes(t).Tool), WithoutGraveyard())
	require.NoError(t, s.Init(t.Context()))
	// Two cubes plus the implicit complement.
	assert.Equal(t, 3, s.NumEntities(topo.DimVolume))
	assert.Equal(t, 2, s.NumEntities(topo.DimSurface))
}

func TestSession_Queries(t *testing.T) {
	m := twoCubes(t)
	s := NewSession(WithTopology(m.Tool))
	require.NoError(t, s.Init(t.Context()))

	vol, surf := m.Volumes[0], m.Surfaces[0]

	var history query.RayHistory
	hit, dist, err := s.RayFire(vol, mesh.Vec3{}, mesh.Vec3{1, 0, 0}, query.WithHistory(&history))
	require.NoError(t, err)
	assert.Equal(t, surf, hit)
	assert.InDelta(t, 1.0, dist, 1e-9)
	assert.Equal(t, 1, history.Len())

	next, err := s.NextVolume(surf, vol)
	require.NoError(t, err)
	assert.True(t, s.IsImplicitComplement(next))

	c, err := s.PointInVolumeSlow(vol, mesh.Vec3{0.5, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, query.Inside, c)

	d, closest, err := s.ClosestToLocation(vol, mesh.Vec3{0.5, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, surf, closest)
	assert.InDelta(t, 0.5, d, 1e-9)

	area, err := s.MeasureArea(surf)
	require.NoError(t, err)
	assert.InDelta(t, 24.0, area, 1e-9)

	sense, err := s.SurfaceSense(vol, surf)
	require.NoError(t, err)
	assert.Equal(t, topo.Forward, sense)

	senses, err := s.SurfaceSenses(next, []mesh.Handle{surf, m.Surfaces[1]})
	require.NoError(t, err)
	assert.Equal(t, []topo.Sense{topo.Reverse, topo.Reverse}, senses)

	n, err := s.SurfaceNormal(surf, mesh.Vec3{1, 0, 0}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, n[0], 1e-9)

	bc, err := s.TestVolumeBoundary(vol, surf, mesh.Vec3{1, 0, 0}, mesh.Vec3{1, 0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, query.Outside, bc)
}

func TestSession_NotFound(t *testing.T) {
	s := NewSession(WithTopology(twoCubes(t).Tool))

	_, err := s.EntityByIndex(topo.DimVolume, 1)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Init(t.Context()))

	_, err = s.EntityByIndex(topo.DimVolume, 99)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.IndexOf(mesh.Handle(1 << 40))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.EntityByID(topo.DimSurface, 99)
	require.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.RayFire(mesh.Handle(1<<40), mesh.Vec3{}, mesh.Vec3{1, 0, 0})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSession_IDByIndex(t *testing.T) {
	m := twoCubes(t)
	s := NewSession(WithTopology(m.Tool))
	require.NoError(t, s.Init(t.Context()))

	for i := 1; i <= s.NumEntities(topo.DimSurface); i++ {
		h, err := s.EntityByIndex(topo.DimSurface, i)
		require.NoError(t, err)
		id, err := s.IDByIndex(topo.DimSurface, i)
		require.NoError(t, err)
		back, err := s.EntityByID(topo.DimSurface, id)
		require.NoError(t, err)
		assert.Equal(t, h, back)
	}
}

func TestSession_IndexGeneration(t *testing.T) {
	s := NewSession(WithTopology(twoCubes(t).Tool))
	require.NoError(t, s.Init(t.Context()))

	gen := s.IndexGeneration()
	require.NoError(t, s.CheckIndex(gen))

	_, err := s.CreateGraveyard()
	require.NoError(t, err)
	require.NoError(t, s.SetupIndices())

	assert.Greater(t, s.IndexGeneration(), gen)
	require.ErrorIs(t, s.CheckIndex(gen), ErrIndexStale)
}

func TestSession_CreateGraveyardInvalid(t *testing.T) {
	// A single flat square has a degenerate bounding box.
	m := testutil.NewModel()
	db := m.DB
	v := [4]mesh.Handle{
		db.CreateVertex(mesh.Vec3{0, 0, 0}), db.CreateVertex(mesh.Vec3{1, 0, 0}),
		db.CreateVertex(mesh.Vec3{1, 1, 0}), db.CreateVertex(mesh.Vec3{0, 1, 0}),
	}
	surf := db.CreateSet()
	for _, tri := range [][3]int{{0, 1, 2}, {0, 2, 3}} {
		h, err := db.CreateTriangle(v[tri[0]], v[tri[1]], v[tri[2]])
		require.NoError(t, err)
		require.NoError(t, db.AddEntities(surf, h))
	}
	require.NoError(t, m.Tool.AddGeoSet(surf, topo.DimSurface))
	vol := db.CreateSet()
	require.NoError(t, m.Tool.AddGeoSet(vol, topo.DimVolume))
	require.NoError(t, m.Tool.SetSense(surf, vol, topo.Forward))

	s := NewSession(WithTopology(m.Tool), WithGraveyardMargin(0))
	err := s.Init(t.Context())
	require.ErrorIs(t, err, ErrInvalidGeometry)
	require.ErrorIs(t, err, synth.ErrInvalidGeometry)
}

func TestSession_Tolerances(t *testing.T) {
	s := NewSession(WithOverlapThickness(0.1), WithNumericalPrecision(0.01))
	assert.Equal(t, 0.1, s.OverlapThickness())
	assert.Equal(t, 0.01, s.NumericalPrecision())

	s.SetOverlapThickness(0.2)
	s.SetNumericalPrecision(0.02)
	assert.Equal(t, 0.2, s.OverlapThickness())
	assert.Equal(t, 0.02, s.NumericalPrecision())
}

func TestSession_Close(t *testing.T) {
	t.Run("owned", func(t *testing.T) {
		s := NewSession()
		s.DB().CreateSet()
		dbOwn, toolOwn := s.Ownership()
		assert.Equal(t, Owned, dbOwn)
		assert.Equal(t, Owned, toolOwn)

		require.NoError(t, s.Close())
		assert.Zero(t, s.DB().Len())
	})

	t.Run("borrowed", func(t *testing.T) {
		m := twoCubes(t)
		s := NewSession(WithTopology(m.Tool))
		dbOwn, toolOwn := s.Ownership()
		assert.Equal(t, Borrowed, dbOwn)
		assert.Equal(t, Borrowed, toolOwn)

		n := m.DB.Len()
		require.NoError(t, s.Close())
		assert.Equal(t, n, m.DB.Len())
	})

	t.Run("borrowed mesh owned tool", func(t *testing.T) {
		s := NewSession(WithMesh(mesh.New()))
		dbOwn, toolOwn := s.Ownership()
		assert.Equal(t, Borrowed, dbOwn)
		assert.Equal(t, Owned, toolOwn)
	})
}

func TestSession_WriteMeshRoundTrip(t *testing.T) {
	m := twoCubes(t)
	src := NewSession(WithTopology(m.Tool))
	require.NoError(t, src.Init(t.Context()))

	path := filepath.Join(t.TempDir(), "out.bgm")
	require.NoError(t, src.WriteMesh(t.Context(), path))

	dst := NewSession()
	require.NoError(t, dst.Load(t.Context(), path))
	require.NoError(t, dst.Init(t.Context()))

	// The loaded model already carries a graveyard, so Init nests a
	// second one around it.
	assert.Equal(t, src.NumEntities(topo.DimVolume)+1, dst.NumEntities(topo.DimVolume))

	err := src.WriteMesh(t.Context(), filepath.Join(t.TempDir(), "no", "such", "dir", "x.bgm"))
	require.ErrorIs(t, err, ErrIoFailure)
}
