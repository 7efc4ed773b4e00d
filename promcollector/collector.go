// Package promcollector exports brepq metrics to Prometheus.
package promcollector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/brepq"
)

var _ brepq.MetricsCollector = (*Collector)(nil)

// Collector implements brepq.MetricsCollector on Prometheus vectors.
type Collector struct {
	opLatency *prometheus.HistogramVec
	rayHits   *prometheus.CounterVec
	loadBytes prometheus.Counter
	inits     *prometheus.CounterVec
}

// New creates a Collector and registers its metrics with reg. namespace
// prefixes every metric name; it defaults to "brepq".
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if namespace == "" {
		namespace = "brepq"
	}
	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of geometry queries and lifecycle operations",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"op", "status"}),
		rayHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ray_fires_total",
			Help:      "Ray fires by outcome",
		}, []string{"outcome"}),
		loadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_bytes_total",
			Help:      "Bytes of geometry files loaded",
		}),
		inits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_inits_total",
			Help:      "Context initializations by status",
		}, []string{"status"}),
	}

	for _, col := range []prometheus.Collector{c.opLatency, c.rayHits, c.loadBytes, c.inits} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on registration errors.
func MustNew(reg prometheus.Registerer, namespace string) *Collector {
	c, err := New(reg, namespace)
	if err != nil {
		panic(err)
	}
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.opLatency.WithLabelValues(op, status(err)).Observe(d.Seconds())
}

// RecordRayFire implements brepq.MetricsCollector.
func (c *Collector) RecordRayFire(d time.Duration, hit bool, err error) {
	c.observe("ray_fire", d, err)
	switch {
	case err != nil:
		c.rayHits.WithLabelValues("error").Inc()
	case hit:
		c.rayHits.WithLabelValues("hit").Inc()
	default:
		c.rayHits.WithLabelValues("miss").Inc()
	}
}

// RecordPointInVolume implements brepq.MetricsCollector.
func (c *Collector) RecordPointInVolume(d time.Duration, err error) {
	c.observe("point_in_volume", d, err)
}

// RecordClosest implements brepq.MetricsCollector.
func (c *Collector) RecordClosest(d time.Duration, err error) {
	c.observe("closest", d, err)
}

// RecordLoad implements brepq.MetricsCollector.
func (c *Collector) RecordLoad(bytes int64, d time.Duration, err error) {
	c.observe("load", d, err)
	if err == nil && bytes > 0 {
		c.loadBytes.Add(float64(bytes))
	}
}

// RecordInit implements brepq.MetricsCollector. The context id is not used
// as a label to keep cardinality bounded.
func (c *Collector) RecordInit(_ int, d time.Duration, err error) {
	c.observe("init", d, err)
	c.inits.WithLabelValues(status(err)).Inc()
}
