// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mathengine/internal/backend/cpu"
	"github.com/born-ml/mathengine/native"
	"github.com/born-ml/mathengine/native/nativetest"
)

// hostFactory returns a factory over the real CPU runtime.
func hostFactory(t *testing.T, opts ...Option) *Factory {
	t.Helper()
	return NewFactory(cpu.New(testLogger(t)), opts...)
}

func closeEngine(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.Close())
}

func TestNoGPURuntime(t *testing.T) {
	f := hostFactory(t)

	devices := f.Devices()
	assert.NotNil(t, devices)
	assert.Empty(t, devices)

	_, err := f.NewGPU(0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFreshCPUEnginePeakIsZero(t *testing.T) {
	f := hostFactory(t)

	e, err := f.NewCPU(0)
	require.NoError(t, err)
	defer closeEngine(t, e)

	assert.Equal(t, CPU, e.Kind())
	assert.Equal(t, StateActive, e.State())
	assert.Positive(t, e.ThreadCount())

	peak, err := e.PeakMemoryUsage()
	require.NoError(t, err)
	assert.Zero(t, peak)
}

func TestIndependentTelemetry(t *testing.T) {
	f := hostFactory(t)
	ctx := context.Background()

	a, err := f.NewCPU(4)
	require.NoError(t, err)
	defer closeEngine(t, a)
	b, err := f.NewCPU(8)
	require.NoError(t, err)
	defer closeEngine(t, b)

	assert.Equal(t, 4, a.ThreadCount())
	assert.Equal(t, 8, b.ThreadCount())
	assert.NotEqual(t, a.ID(), b.ID())

	_, err = a.AllocTemporary(ctx, 4096)
	require.NoError(t, err)

	peakA, err := a.PeakMemoryUsage()
	require.NoError(t, err)
	peakB, err := b.PeakMemoryUsage()
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), peakA)
	assert.Zero(t, peakB)

	_, err = b.AllocPersistent(100)
	require.NoError(t, err)
	peakA2, err := a.PeakMemoryUsage()
	require.NoError(t, err)
	assert.Equal(t, peakA, peakA2)
}

func TestCleanUpFreshEngine(t *testing.T) {
	f := hostFactory(t)
	e, err := f.NewCPU(0)
	require.NoError(t, err)
	defer closeEngine(t, e)

	require.NoError(t, e.CleanUp(context.Background()))
	peak, err := e.PeakMemoryUsage()
	require.NoError(t, err)
	assert.Zero(t, peak)
}

func TestCleanUpIdempotent(t *testing.T) {
	f := hostFactory(t)
	e, err := f.NewCPU(2)
	require.NoError(t, err)
	defer closeEngine(t, e)

	ctx := WithThread(context.Background())
	_, err = e.AllocTemporary(ctx, 1<<20)
	require.NoError(t, err)

	require.NoError(t, e.CleanUp(ctx))
	before, err := e.PeakMemoryUsage()
	require.NoError(t, err)
	require.NoError(t, e.CleanUp(ctx))
	after, err := e.PeakMemoryUsage()
	require.NoError(t, err)

	assert.Equal(t, before, after)
	inUse, err := e.MemoryUsage()
	require.NoError(t, err)
	assert.Zero(t, inUse)
}

func TestPeakMonotonic(t *testing.T) {
	f := hostFactory(t)
	e, err := f.NewCPU(2)
	require.NoError(t, err)
	defer closeEngine(t, e)

	ctx := WithThread(context.Background())
	var last uint64
	check := func() {
		t.Helper()
		peak, err := e.PeakMemoryUsage()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, peak, last)
		last = peak
	}

	sizes := []uint64{128, 8192, 64, 2 << 20, 512}
	for _, size := range sizes {
		buf, err := e.AllocTemporary(ctx, size)
		require.NoError(t, err)
		check()
		require.NoError(t, e.Recycle(ctx, buf))
		check()
	}
	p, err := e.AllocPersistent(3 << 20)
	require.NoError(t, err)
	check()
	require.NoError(t, e.CleanUp(ctx))
	check()
	require.NoError(t, e.Free(p))
	check()

	// 64 bytes reused the recycled 128 byte buffer and 512 the 8192 one.
	assert.Equal(t, uint64(3<<20)+128+8192+(2<<20), last)
}

func TestCleanUpScopedToThread(t *testing.T) {
	f := hostFactory(t)
	e, err := f.NewCPU(2)
	require.NoError(t, err)
	defer closeEngine(t, e)

	t1 := WithThread(context.Background())
	t2 := WithThread(context.Background())

	_, err = e.AllocTemporary(t1, 1000)
	require.NoError(t, err)
	_, err = e.AllocTemporary(t2, 2000)
	require.NoError(t, err)
	_, err = e.AllocPersistent(500)
	require.NoError(t, err)

	require.NoError(t, e.CleanUp(t1))
	inUse, err := e.MemoryUsage()
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), inUse)

	require.NoError(t, e.CleanUp(t2))
	inUse, err = e.MemoryUsage()
	require.NoError(t, err)
	assert.Equal(t, uint64(500), inUse)
}

func TestRecycleReuses(t *testing.T) {
	f := hostFactory(t)
	e, err := f.NewCPU(1)
	require.NoError(t, err)
	defer closeEngine(t, e)

	ctx := WithThread(context.Background())
	buf, err := e.AllocTemporary(ctx, 1024)
	require.NoError(t, err)
	require.NoError(t, e.Recycle(ctx, buf))

	again, err := e.AllocTemporary(ctx, 512)
	require.NoError(t, err)
	assert.Same(t, buf, again)

	peak, err := e.PeakMemoryUsage()
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), peak)

	stats, err := e.MemoryStats()
	require.NoError(t, err)
	assert.Equal(t, native.MemoryStats{
		InUse:         1024,
		Peak:          1024,
		Allocations:   1,
		ActiveBuffers: 1,
		Threads:       1,
		PoolHits:      1,
		PoolMisses:    1,
	}, stats)
}

func TestMemoryLimit(t *testing.T) {
	f := hostFactory(t, WithMemoryLimit(4096))
	assert.Equal(t, uint64(4096), f.MemoryLimit())

	e, err := f.NewCPU(1)
	require.NoError(t, err)
	defer closeEngine(t, e)

	_, err = e.AllocPersistent(4000)
	require.NoError(t, err)

	_, err = e.AllocTemporary(context.Background(), 1000)
	require.ErrorIs(t, err, ErrResourceExhausted)
	require.ErrorIs(t, err, native.ErrOutOfMemory)

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "AllocTemporary", engErr.Op)
	assert.Equal(t, e.ID(), engErr.Engine)
}

func TestFreeForeignBuffer(t *testing.T) {
	f := hostFactory(t)
	a, err := f.NewCPU(1)
	require.NoError(t, err)
	defer closeEngine(t, a)
	b, err := f.NewCPU(1)
	require.NoError(t, err)
	defer closeEngine(t, b)

	buf, err := a.AllocPersistent(64)
	require.NoError(t, err)
	require.ErrorIs(t, b.Free(buf), ErrInvalidArgument)
	require.ErrorIs(t, a.Free(nil), ErrInvalidArgument)
	require.NoError(t, a.Free(buf))
}

func TestDeviceInfoOnCPU(t *testing.T) {
	f := hostFactory(t)
	for _, threads := range []int{0, 1, 3} {
		e, err := f.NewCPU(threads)
		require.NoError(t, err)

		_, err = e.DeviceInfo()
		require.ErrorIs(t, err, ErrUnsupportedOperation)

		info, err := e.CPUInfo()
		require.NoError(t, err)
		assert.Equal(t, e.ThreadCount(), info.Threads)
		assert.Equal(t, threads, info.Requested)

		closeEngine(t, e)
	}
}

func TestGPUEngine(t *testing.T) {
	rt := nativetest.New(nativetest.GPU("Fake A", 8<<30), nativetest.GPU("Fake B", 16<<30))
	f := NewFactory(rt)

	e, err := f.NewGPU(1)
	require.NoError(t, err)
	defer closeEngine(t, e)

	assert.Equal(t, GPU, e.Kind())
	assert.Zero(t, e.ThreadCount())
	assert.Contains(t, e.String(), "gpu1 Fake B")

	info, err := e.DeviceInfo()
	require.NoError(t, err)
	assert.Equal(t, 1, info.Index)
	assert.Equal(t, "Fake B", info.Name)
	assert.Equal(t, uint64(16<<30), info.TotalMemory)

	// Returned info is a copy.
	info.Capabilities["compute"] = "changed"
	again, err := e.DeviceInfo()
	require.NoError(t, err)
	assert.Equal(t, "8.6", again.Capabilities["compute"])

	_, err = e.CPUInfo()
	require.ErrorIs(t, err, ErrUnsupportedOperation)

	err = e.Parallel(context.Background(), 4, func(context.Context, int) error { return nil })
	require.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestGPUIndexOutOfRange(t *testing.T) {
	rt := nativetest.New(nativetest.GPU("Fake", 1<<30))
	f := NewFactory(rt)

	for _, index := range []int{-5, -1, 1, 2, 100} {
		_, err := f.NewGPU(index)
		require.ErrorIs(t, err, ErrInvalidArgument, "index %d", index)
	}
	assert.Zero(t, rt.CallCount("OpenGPU"))
	assert.Empty(t, rt.Handles())
	assert.Zero(t, f.Live())
}

func TestNegativeThreadCount(t *testing.T) {
	rt := nativetest.New()
	f := NewFactory(rt)

	_, err := f.NewCPU(-1)
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, rt.CallCount("OpenCPU"))
}

func TestNativeFailure(t *testing.T) {
	rt := nativetest.New(nativetest.GPU("Fake", 1<<30))
	rt.CPUError = native.ErrOutOfMemory
	rt.GPUError = native.ErrUnavailable
	f := NewFactory(rt)

	_, err := f.NewCPU(2)
	require.ErrorIs(t, err, ErrResourceExhausted)
	require.ErrorIs(t, err, native.ErrOutOfMemory)

	_, err = f.NewGPU(0)
	require.ErrorIs(t, err, ErrResourceExhausted)
	require.ErrorIs(t, err, native.ErrUnavailable)
	assert.Zero(t, f.Live())
}

func TestDefault(t *testing.T) {
	rt := nativetest.New(nativetest.GPU("Fake", 1<<30))
	f := NewFactory(rt)

	e, err := f.Default()
	require.NoError(t, err)
	assert.Equal(t, CPU, e.Kind())
	closeEngine(t, e)

	rt.DefaultKind = native.KindGPU
	e, err = f.Default()
	require.NoError(t, err)
	assert.Equal(t, GPU, e.Kind())
	closeEngine(t, e)

	rt.CPUError = errors.New("boom")
	rt.DefaultKind = native.KindCPU
	_, err = f.Default()
	require.ErrorIs(t, err, ErrResourceExhausted)
}

func TestCloseDisposes(t *testing.T) {
	rt := nativetest.New()
	f := NewFactory(rt)

	e, err := f.NewCPU(2)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Live())

	ctx := context.Background()
	_, err = e.AllocTemporary(ctx, 10)
	require.NoError(t, err)

	require.NoError(t, e.Close())
	assert.Equal(t, StateDisposed, e.State())
	assert.Zero(t, f.Live())

	h := rt.Handles()[0]
	assert.True(t, h.Closed())
	assert.Zero(t, h.MemoryUsage())

	calls := map[string]func() error{
		"Close":           e.Close,
		"CleanUp":         func() error { return e.CleanUp(ctx) },
		"PeakMemoryUsage": func() error { _, err := e.PeakMemoryUsage(); return err },
		"MemoryUsage":     func() error { _, err := e.MemoryUsage(); return err },
		"DeviceInfo":      func() error { _, err := e.DeviceInfo(); return err },
		"CPUInfo":         func() error { _, err := e.CPUInfo(); return err },
		"AllocTemporary":  func() error { _, err := e.AllocTemporary(ctx, 1); return err },
		"AllocPersistent": func() error { _, err := e.AllocPersistent(1); return err },
		"Free":            func() error { return e.Free(&nativetest.Buffer{}) },
		"Recycle":         func() error { return e.Recycle(ctx, &nativetest.Buffer{}) },
		"Parallel": func() error {
			return e.Parallel(ctx, 1, func(context.Context, int) error { return nil })
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, call(), ErrInvalidState)
		})
	}

	// The native handle was closed exactly once.
	assert.Equal(t, 1, h.Closes())
}

func TestParallel(t *testing.T) {
	f := hostFactory(t)
	e, err := f.NewCPU(4)
	require.NoError(t, err)
	defer closeEngine(t, e)

	var sum atomic.Int64
	err = e.Parallel(context.Background(), 1000, func(_ context.Context, i int) error {
		sum.Add(int64(i))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(999*1000/2), sum.Load())

	boom := errors.New("boom")
	err = e.Parallel(context.Background(), 1000, func(_ context.Context, i int) error {
		if i == 500 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)

	require.ErrorIs(t, e.Parallel(context.Background(), -1, func(context.Context, int) error { return nil }), ErrInvalidArgument)
}

func TestCloseDuringParallel(t *testing.T) {
	f := hostFactory(t)
	e, err := f.NewCPU(2)
	require.NoError(t, err)

	const n = 128 // enough for two worker goroutines
	started := make(chan struct{}, n)
	proceed := make(chan struct{})
	parallelDone := make(chan error, 1)
	go func() {
		parallelDone <- e.Parallel(context.Background(), n, func(ctx context.Context, _ int) error {
			started <- struct{}{}
			<-proceed
			_, err := e.AllocTemporary(WithThread(ctx), 64)
			return err
		})
	}()
	<-started

	closeDone := make(chan error, 1)
	go func() { closeDone <- e.Close() }()

	require.Eventually(t, func() bool { return e.State() == StateDisposed }, 5*time.Second, time.Millisecond)
	select {
	case <-closeDone:
		t.Fatal("Close returned while Parallel was running")
	default:
	}
	close(proceed)

	select {
	case err := <-parallelDone:
		require.ErrorIs(t, err, ErrInvalidState)
	case <-time.After(5 * time.Second):
		t.Fatal("Parallel worker blocked after Close")
	}
	select {
	case err := <-closeDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Zero(t, f.Live())
}

func TestParallelWithoutRunner(t *testing.T) {
	f := NewFactory(nativetest.New())
	e, err := f.NewCPU(2)
	require.NoError(t, err)
	defer closeEngine(t, e)

	var seen []int
	err = e.Parallel(context.Background(), 3, func(_ context.Context, i int) error {
		seen = append(seen, i)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestConcurrentUse(t *testing.T) {
	f := hostFactory(t)
	e, err := f.NewCPU(4)
	require.NoError(t, err)
	defer closeEngine(t, e)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := WithThread(context.Background())
			for range 50 {
				buf, err := e.AllocTemporary(ctx, 256)
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, e.Recycle(ctx, buf))
			}
			assert.NoError(t, e.CleanUp(ctx))
		}()
	}
	wg.Wait()

	inUse, err := e.MemoryUsage()
	require.NoError(t, err)
	assert.Zero(t, inUse)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "disposed", StateDisposed.String())
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "State(9)", State(9).String())
}
