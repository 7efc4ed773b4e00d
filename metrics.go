package brepq

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus;
// the promcollector package ships one.
type MetricsCollector interface {
	// RecordRayFire is called after each ray fire.
	// hit reports whether a surface was found.
	RecordRayFire(duration time.Duration, hit bool, err error)

	// RecordPointInVolume is called after each containment query.
	RecordPointInVolume(duration time.Duration, err error)

	// RecordClosest is called after each closest-surface query.
	RecordClosest(duration time.Duration, err error)

	// RecordLoad is called after each geometry load.
	RecordLoad(bytes int64, duration time.Duration, err error)

	// RecordInit is called after each context initialization.
	RecordInit(context int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRayFire(time.Duration, bool, error) {}
func (NoopMetricsCollector) RecordPointInVolume(time.Duration, error) {}
func (NoopMetricsCollector) RecordClosest(time.Duration, error)       {}
func (NoopMetricsCollector) RecordLoad(int64, time.Duration, error)   {}
func (NoopMetricsCollector) RecordInit(int, time.Duration, error)     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	RayFireCount       atomic.Int64
	RayFireHits        atomic.Int64
	RayFireErrors      atomic.Int64
	RayFireTotalNanos  atomic.Int64
	PointInVolumeCount atomic.Int64
	PointInVolumeErrs  atomic.Int64
	ClosestCount       atomic.Int64
	ClosestErrors      atomic.Int64
	LoadCount          atomic.Int64
	LoadBytes          atomic.Int64
	LoadErrors         atomic.Int64
	InitCount          atomic.Int64
	InitErrors         atomic.Int64
	InitTotalNanos     atomic.Int64
}

// RecordRayFire implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRayFire(duration time.Duration, hit bool, err error) {
	b.RayFireCount.Add(1)
	b.RayFireTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RayFireErrors.Add(1)
	} else if hit {
		b.RayFireHits.Add(1)
	}
}

// RecordPointInVolume implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPointInVolume(_ time.Duration, err error) {
	b.PointInVolumeCount.Add(1)
	if err != nil {
		b.PointInVolumeErrs.Add(1)
	}
}

// RecordClosest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClosest(_ time.Duration, err error) {
	b.ClosestCount.Add(1)
	if err != nil {
		b.ClosestErrors.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(bytes int64, _ time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
		return
	}
	b.LoadBytes.Add(bytes)
}

// RecordInit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInit(_ int, duration time.Duration, err error) {
	b.InitCount.Add(1)
	b.InitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InitErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		RayFireCount:       b.RayFireCount.Load(),
		RayFireHits:        b.RayFireHits.Load(),
		RayFireErrors:      b.RayFireErrors.Load(),
		RayFireAvgNanos:    avg(b.RayFireTotalNanos.Load(), b.RayFireCount.Load()),
		PointInVolumeCount: b.PointInVolumeCount.Load(),
		PointInVolumeErrs:  b.PointInVolumeErrs.Load(),
		ClosestCount:       b.ClosestCount.Load(),
		ClosestErrors:      b.ClosestErrors.Load(),
		LoadCount:          b.LoadCount.Load(),
		LoadBytes:          b.LoadBytes.Load(),
		LoadErrors:         b.LoadErrors.Load(),
		InitCount:          b.InitCount.Load(),
		InitErrors:         b.InitErrors.Load(),
		InitAvgNanos:       avg(b.InitTotalNanos.Load(), b.InitCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RayFireCount       int64
	RayFireHits        int64
	RayFireErrors      int64
	RayFireAvgNanos    int64
	PointInVolumeCount int64
	PointInVolumeErrs  int64
	ClosestCount       int64
	ClosestErrors      int64
	LoadCount          int64
	LoadBytes          int64
	LoadErrors         int64
	InitCount          int64
	InitErrors         int64
	InitAvgNanos       int64
}
