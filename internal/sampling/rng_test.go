package sampling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brepq/mesh"
)

func TestUnitVec3(t *testing.T) {
	rng := NewRNG(4711)

	for range 16 {
		v := rng.UnitVec3()
		assert.InDelta(t, 1.0, v.Len(), 1e-9)
	}
}

func TestPointIn(t *testing.T) {
	rng := NewRNG(4711)
	b := mesh.Box{Min: mesh.Vec3{-1, -2, -3}, Max: mesh.Vec3{1, 2, 3}}

	origins, dirs := rng.Rays(32, b)
	require.Len(t, origins, 32)
	require.Len(t, dirs, 32)
	for _, p := range origins {
		assert.True(t, b.Contains(p))
	}
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.UnitVec3()
	rng.Reset()
	v2 := rng.UnitVec3()

	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestIntn_Deterministic(t *testing.T) {
	a, b := NewRNG(7), NewRNG(7)
	for range 32 {
		n := a.Intn(5)
		assert.Equal(t, n, b.Intn(5))
		assert.True(t, n >= 0 && n < 5)
	}
}
