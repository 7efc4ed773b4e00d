package query

import "github.com/hupe1980/brepq/mesh"

const (
	// DefaultOverlapThickness is the tolerated overlap between adjacent volumes.
	DefaultOverlapThickness = 0.0
	// DefaultNumericalPrecision is the distance under which a point counts as
	// lying on a surface.
	DefaultNumericalPrecision = 0.001
)

// DefaultDirection is used by PointInVolume when no direction is given.
// It is deliberately not axis-aligned so that it rarely grazes box models.
var DefaultDirection = mesh.Vec3{0.6, 0.48, 0.64}

// Option configures an Engine.
type Option func(*Engine)

// WithOverlapThickness sets the overlap tolerance.
func WithOverlapThickness(v float64) Option {
	return func(e *Engine) {
		e.overlap = v
	}
}

// WithNumericalPrecision sets the numerical precision.
func WithNumericalPrecision(v float64) Option {
	return func(e *Engine) {
		e.precision = v
	}
}

// Orientation filters RayFire hits by the direction the ray crosses the surface.
type Orientation int

const (
	// Entering keeps hits where the ray enters the volume.
	Entering Orientation = -1
	// AnyOrientation keeps every hit.
	AnyOrientation Orientation = 0
	// Exiting keeps hits where the ray leaves the volume.
	Exiting Orientation = 1
)

// TraversalStats counts the work done by one or more RayFire calls.
type TraversalStats struct {
	BoxTests     int
	FacetsTested int
	Hits         int
}

type rayOptions struct {
	history     *RayHistory
	distLimit   float64
	orientation Orientation
	stats       *TraversalStats
}

// RayOption configures a RayFire call.
type RayOption func(*rayOptions)

// WithHistory skips facets recorded in h and appends the hit facet to it.
func WithHistory(h *RayHistory) RayOption {
	return func(o *rayOptions) {
		o.history = h
	}
}

// WithDistanceLimit ignores hits farther than limit. Zero or less means no limit.
func WithDistanceLimit(limit float64) RayOption {
	return func(o *rayOptions) {
		o.distLimit = limit
	}
}

// WithOrientation filters hits by crossing direction. Defaults to Exiting.
func WithOrientation(or Orientation) RayOption {
	return func(o *rayOptions) {
		o.orientation = or
	}
}

// WithStats accumulates traversal counters into s.
func WithStats(s *TraversalStats) RayOption {
	return func(o *rayOptions) {
		o.stats = s
	}
}

type pointOptions struct {
	dir     mesh.Vec3
	history *RayHistory
}

// PointOption configures PointInVolume.
type PointOption func(*pointOptions)

// WithDirection sets the probe direction.
func WithDirection(dir mesh.Vec3) PointOption {
	return func(o *pointOptions) {
		o.dir = dir
	}
}

// WithPointHistory skips facets recorded in h.
func WithPointHistory(h *RayHistory) PointOption {
	return func(o *pointOptions) {
		o.history = h
	}
}
