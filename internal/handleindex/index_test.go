package handleindex

import (
	"testing"

	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/topo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_RoundTrip(t *testing.T) {
	surfaces := []mesh.Handle{12, 7, 30, 8}
	volumes := []mesh.Handle{41, 9, 15}
	groups := []mesh.Handle{50, 51}

	idx, err := Build(surfaces, volumes, groups)
	require.NoError(t, err)
	assert.Equal(t, mesh.Handle(7), idx.Offset())
	assert.Equal(t, 4, idx.Count(topo.DimSurface))
	assert.Equal(t, 3, idx.Count(topo.DimVolume))
	assert.Equal(t, 2, idx.Count(topo.DimGroup))

	for dim, hs := range map[topo.Dimension][]mesh.Handle{topo.DimSurface: surfaces, topo.DimVolume: volumes} {
		seen := make(map[int]bool)
		for i, h := range hs {
			id, err := idx.IndexOf(h)
			require.NoError(t, err)
			assert.Equal(t, i+1, id, "IDs follow input order")
			assert.False(t, seen[id], "IDs are unique within a dimension")
			seen[id] = true

			back, err := idx.Handle(dim, id)
			require.NoError(t, err)
			assert.Equal(t, h, back)
		}
	}

	g, err := idx.Handle(topo.DimGroup, 2)
	require.NoError(t, err)
	assert.Equal(t, mesh.Handle(51), g)
	assert.Equal(t, groups, idx.Groups())
}

func TestIndex_NotFound(t *testing.T) {
	idx, err := Build([]mesh.Handle{5, 6}, []mesh.Handle{10}, nil)
	require.NoError(t, err)

	for _, h := range []mesh.Handle{1, 4, 7, 11, 1000} {
		_, err := idx.IndexOf(h)
		require.ErrorIs(t, err, ErrNotFound, "handle %d", h)
	}

	for _, id := range []int{0, -1, 2} {
		_, err := idx.Handle(topo.DimVolume, id)
		require.ErrorIs(t, err, ErrNotFound, "id %d", id)
	}

	_, err = idx.Handle(topo.DimCurve, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBuild_Empty(t *testing.T) {
	idx, err := Build(nil, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, idx.Count(topo.DimSurface))
	assert.Zero(t, idx.Count(topo.DimVolume))
	assert.Empty(t, idx.Groups())

	_, err = idx.IndexOf(1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBuild_Invalid(t *testing.T) {
	_, err := Build([]mesh.Handle{3, 3}, nil, nil)
	require.Error(t, err)

	_, err = Build([]mesh.Handle{3}, []mesh.Handle{3}, nil)
	require.Error(t, err)

	_, err = Build([]mesh.Handle{0, 2}, nil, nil)
	require.Error(t, err)
}

func TestIndex_Generation(t *testing.T) {
	first, err := Build([]mesh.Handle{1}, []mesh.Handle{2}, nil)
	require.NoError(t, err)
	gen := first.Generation()
	require.NoError(t, first.Check(gen))

	second, err := Build([]mesh.Handle{1}, []mesh.Handle{2, 3}, nil)
	require.NoError(t, err)
	assert.Greater(t, second.Generation(), gen)
	require.ErrorIs(t, second.Check(gen), ErrIndexStale)
}
