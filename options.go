package brepq

import (
	"log/slog"

	"github.com/hupe1980/brepq/codec"
	"github.com/hupe1980/brepq/internal/resource"
	"github.com/hupe1980/brepq/internal/synth"
	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/query"
	"github.com/hupe1980/brepq/topo"
)

// DefaultFacetingTolerance applies when a model carries no FACETING_TOL tag.
const DefaultFacetingTolerance = 0.001

type options struct {
	db        *mesh.DB
	tool      *topo.Tool
	resources *resource.Controller

	overlapThickness   float64
	numericalPrecision float64
	facetingTolerance  float64
	graveyard          bool
	margin             float64

	codec       codec.Codec
	compression mesh.Compression

	metricsCollector MetricsCollector
	logger           *Logger
}

func defaultOptions() options {
	return options{
		overlapThickness:   query.DefaultOverlapThickness,
		numericalPrecision: query.DefaultNumericalPrecision,
		facetingTolerance:  DefaultFacetingTolerance,
		graveyard:          true,
		margin:             synth.DefaultMargin,
		codec:              codec.Default,
		compression:        mesh.CompressionZSTD,
		metricsCollector:   NoopMetricsCollector{},
		logger:             NoopLogger(),
	}
}

func applyOptions(optFns []Option) options {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

// Option configures Session and Manager construction.
type Option func(*options)

// WithMesh shares an existing mesh database. The caller keeps ownership;
// Close leaves it untouched.
func WithMesh(db *mesh.DB) Option {
	return func(o *options) {
		o.db = db
	}
}

// WithTopology shares an existing topology tool and its mesh database. The
// caller keeps ownership of both.
func WithTopology(tool *topo.Tool) Option {
	return func(o *options) {
		o.tool = tool
		if tool != nil {
			o.db = tool.DB()
		}
	}
}

// WithResourceController bounds concurrent context builds, decoded memory
// and file throughput. Without one nothing is bounded.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithOverlapThickness sets the distance behind the ray origin within which
// hits are still accepted.
func WithOverlapThickness(v float64) Option {
	return func(o *options) {
		o.overlapThickness = v
	}
}

// WithNumericalPrecision sets the distance below which a point counts as on
// a boundary.
func WithNumericalPrecision(v float64) Option {
	return func(o *options) {
		o.numericalPrecision = v
	}
}

// WithDefaultFacetingTolerance overrides DefaultFacetingTolerance.
func WithDefaultFacetingTolerance(v float64) Option {
	return func(o *options) {
		o.facetingTolerance = v
	}
}

// WithGraveyardMargin sets the gap between the model and each graveyard box.
func WithGraveyardMargin(m float64) Option {
	return func(o *options) {
		o.margin = m
	}
}

// WithoutGraveyard skips graveyard synthesis during Init.
func WithoutGraveyard() Option {
	return func(o *options) {
		o.graveyard = false
	}
}

// WithCodec configures the codec used for geometry file payloads.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression selects the compression of written geometry files.
func WithCompression(c mesh.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &brepq.BasicMetricsCollector{}
//	m, _ := brepq.NewManager(brepq.WithMetricsCollector(metrics))
//	// ... use m ...
//	stats := metrics.GetStats()
//	fmt.Printf("Rays: %d, Avg latency: %dns\n", stats.RayFireCount, stats.RayFireAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := brepq.NewJSONLogger(slog.LevelInfo)
//	m, _ := brepq.NewManager(brepq.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}
