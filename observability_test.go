package brepq

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicMetricsCollector(t *testing.T) {
	var m BasicMetricsCollector
	boom := errors.New("boom")

	m.RecordRayFire(10*time.Millisecond, true, nil)
	m.RecordRayFire(20*time.Millisecond, false, nil)
	m.RecordRayFire(30*time.Millisecond, false, boom)
	m.RecordPointInVolume(time.Millisecond, nil)
	m.RecordPointInVolume(time.Millisecond, boom)
	m.RecordClosest(time.Millisecond, nil)
	m.RecordLoad(1024, time.Second, nil)
	m.RecordLoad(4096, time.Second, boom)
	m.RecordInit(0, 2*time.Second, nil)
	m.RecordInit(1, 4*time.Second, boom)

	s := m.GetStats()
	assert.Equal(t, int64(3), s.RayFireCount)
	assert.Equal(t, int64(1), s.RayFireHits)
	assert.Equal(t, int64(1), s.RayFireErrors)
	assert.Equal(t, (20 * time.Millisecond).Nanoseconds(), s.RayFireAvgNanos)
	assert.Equal(t, int64(2), s.PointInVolumeCount)
	assert.Equal(t, int64(1), s.PointInVolumeErrs)
	assert.Equal(t, int64(1), s.ClosestCount)
	assert.Zero(t, s.ClosestErrors)
	assert.Equal(t, int64(2), s.LoadCount)
	assert.Equal(t, int64(1024), s.LoadBytes)
	assert.Equal(t, int64(1), s.LoadErrors)
	assert.Equal(t, int64(2), s.InitCount)
	assert.Equal(t, int64(1), s.InitErrors)
	assert.Equal(t, (3 * time.Second).Nanoseconds(), s.InitAvgNanos)

	var empty BasicMetricsCollector
	assert.Zero(t, empty.GetStats().RayFireAvgNanos)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).
		WithSession("abc").
		WithContextID(2)

	l.LogLoad(t.Context(), "model.bgm", 42, time.Second, nil)
	l.LogInit(t.Context(), 0, 0, 0, errors.New("boom"))
	l.LogUnhandledKeywords(t.Context(), nil)
	l.LogUnhandledKeywords(t.Context(), []string{"rho"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "geometry loaded", rec["msg"])
	assert.Equal(t, "abc", rec["session"])
	assert.EqualValues(t, 2, rec["context"])
	assert.Equal(t, "model.bgm", rec["source"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "boom", rec["error"])

	require.NoError(t, json.Unmarshal([]byte(lines[2]), &rec))
	assert.Equal(t, "WARN", rec["level"])
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(t.Context(), slog.LevelError))
	l.LogClose(t.Context(), 1, nil)
}

func TestOptions(t *testing.T) {
	o := applyOptions([]Option{
		WithMetricsCollector(nil),
		WithLogger(nil),
		WithCodec(nil),
		WithoutGraveyard(),
	})
	assert.IsType(t, NoopMetricsCollector{}, o.metricsCollector)
	assert.NotNil(t, o.logger)
	assert.NotNil(t, o.codec)
	assert.False(t, o.graveyard)
	assert.Equal(t, DefaultFacetingTolerance, o.facetingTolerance)
}
