// Package sampling draws the random particle starts and directions used by
// ray tracing runs. Generators are seeded so runs are reproducible.
package sampling

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/brepq/mesh"
)

// RNG is a seeded generator of points and directions. It is safe for
// concurrent use, but each tracing goroutine should own one so its stream
// stays reproducible.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// UnitVec3 returns a direction uniformly distributed on the unit sphere.
// Uses the Gaussian method for a uniform distribution.
func (r *RNG) UnitVec3() mesh.Vec3 {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		v := mesh.Vec3{r.rand.NormFloat64(), r.rand.NormFloat64(), r.rand.NormFloat64()}
		if n := v.Len(); n > 1e-9 {
			return v.Scale(1 / n)
		}
	}
}

// PointIn returns a point uniformly distributed inside b.
func (r *RNG) PointIn(b mesh.Box) mesh.Vec3 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var p mesh.Vec3
	for i := range p {
		p[i] = b.Min[i] + r.rand.Float64()*(b.Max[i]-b.Min[i])
	}
	return p
}

// Rays returns n random (origin, direction) pairs with origins inside b.
func (r *RNG) Rays(n int, b mesh.Box) ([]mesh.Vec3, []mesh.Vec3) {
	origins := make([]mesh.Vec3, n)
	dirs := make([]mesh.Vec3, n)
	for i := range n {
		origins[i] = r.PointIn(b)
		dirs[i] = r.UnitVec3()
	}
	return origins, dirs
}
