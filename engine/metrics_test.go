package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mathengine/native"
	"github.com/born-ml/mathengine/native/nativetest"
)

func TestMetricsLifecycle(t *testing.T) {
	m := NewMetrics("born")
	rt := nativetest.New(nativetest.GPU("Fake", 1<<30))
	f := NewFactory(rt, WithMetrics(m))

	c, err := f.NewCPU(2)
	require.NoError(t, err)
	g, err := f.NewGPU(0)
	require.NoError(t, err)
	_, err = f.NewGPU(4)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.creations.WithLabelValues("cpu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.creations.WithLabelValues("gpu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("gpu", "invalid_argument")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.active.WithLabelValues("cpu")))

	require.NoError(t, c.CleanUp(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cleanups.WithLabelValues("cpu")))

	require.NoError(t, c.Close())
	require.NoError(t, g.Close())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.active.WithLabelValues("cpu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.disposals.WithLabelValues("gpu")))

	// A second Close does not count twice.
	require.ErrorIs(t, c.Close(), ErrInvalidState)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.disposals.WithLabelValues("cpu")))
}

func TestMetricsNativeFailureReason(t *testing.T) {
	m := NewMetrics("born")
	rt := nativetest.New()
	rt.CPUError = native.ErrOutOfMemory
	f := NewFactory(rt, WithMetrics(m))

	_, err := f.NewCPU(1)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("cpu", "out_of_memory")))
}

func TestMetricsCollectsMemory(t *testing.T) {
	m := NewMetrics("born")
	f := NewFactory(nativetest.New(), WithMetrics(m))

	e, err := f.NewCPU(1)
	require.NoError(t, err)
	buf, err := e.AllocPersistent(2048)
	require.NoError(t, err)
	require.NoError(t, e.Free(buf))

	want := `
# HELP born_engine_peak_memory_bytes Peak memory usage of an engine since construction
# TYPE born_engine_peak_memory_bytes gauge
born_engine_peak_memory_bytes{engine="` + e.ID() + `",kind="cpu"} 2048
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(want), "born_engine_peak_memory_bytes"))

	require.NoError(t, e.Close())
	n, err := testutil.GatherAndCount(m.Registry(), "born_engine_peak_memory_bytes", "born_engine_memory_in_use_bytes")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNilMetrics(t *testing.T) {
	f := NewFactory(nativetest.New())
	e, err := f.NewCPU(1)
	require.NoError(t, err)
	require.NoError(t, e.CleanUp(context.Background()))
	require.NoError(t, e.Close())
}
