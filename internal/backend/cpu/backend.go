// Package cpu implements the pure Go CPU backend: a worker pool sized by the
// requested thread count, host-memory scratch pools per thread and memory
// accounting against an optional limit.
package cpu

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/born-ml/mathengine/internal/memstat"
	"github.com/born-ml/mathengine/internal/parallel"
	"github.com/born-ml/mathengine/internal/scratch"
	"github.com/born-ml/mathengine/native"
)

// CPUBackend is an open CPU backend.
type CPUBackend struct {
	requested int
	cfg       parallel.Config

	mem   *memstat.Tracker
	pools *scratch.Pools

	mu         sync.RWMutex
	closed     bool
	persistent map[*HostBuffer]struct{}

	log zerolog.Logger
}

var (
	_ native.Handle        = (*CPUBackend)(nil)
	_ native.Runner        = (*CPUBackend)(nil)
	_ native.StatsReporter = (*CPUBackend)(nil)
)

// Open creates a CPU backend. threads 0 selects one worker per logical CPU;
// memoryLimit 0 disables the limit.
func Open(threads int, memoryLimit uint64, log zerolog.Logger) (*CPUBackend, error) {
	if threads < 0 {
		return nil, fmt.Errorf("cpu: negative thread count %d", threads)
	}

	b := &CPUBackend{
		requested:  threads,
		cfg:        parallel.ForThreads(threads),
		mem:        memstat.New(memoryLimit),
		persistent: make(map[*HostBuffer]struct{}),
	}
	b.pools = scratch.New(hostAllocator{b})
	b.log = log.With().Str("backend", "cpu").Int("threads", b.cfg.NumWorkers).Logger()
	b.log.Debug().Uint64("memory_limit", memoryLimit).Msg("cpu backend opened")
	return b, nil
}

// Kind implements native.Handle.
func (b *CPUBackend) Kind() native.Kind {
	return native.KindCPU
}

// Closed reports whether Close has been called.
func (b *CPUBackend) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Threads returns the resolved worker count.
func (b *CPUBackend) Threads() int {
	return b.cfg.NumWorkers
}

// PeakMemoryUsage returns the high-water mark of host memory in use.
func (b *CPUBackend) PeakMemoryUsage() uint64 {
	return b.mem.Peak()
}

// MemoryUsage returns the host memory currently in use.
func (b *CPUBackend) MemoryUsage() uint64 {
	return b.mem.InUse()
}

// MemoryStats implements native.StatsReporter.
func (b *CPUBackend) MemoryStats() native.MemoryStats {
	m, p := b.mem.Stats(), b.pools.Stats()
	return native.MemoryStats{
		InUse:         m.InUse,
		Peak:          m.Peak,
		Limit:         m.Limit,
		Allocations:   m.Allocations,
		ActiveBuffers: m.ActiveBuffers,
		Threads:       p.Threads,
		PooledBuffers: p.Pooled,
		PoolHits:      p.Hits,
		PoolMisses:    p.Misses,
	}
}

// AllocTemporary allocates from the scratch pool of thread.
func (b *CPUBackend) AllocTemporary(thread native.ThreadID, size uint64) (native.Buffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, native.ErrClosed
	}
	return b.pools.Acquire(thread, size)
}

// Recycle returns a temporary buffer to the free list of thread.
func (b *CPUBackend) Recycle(thread native.ThreadID, buf native.Buffer) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.pools.Recycle(thread, buf)
}

// AllocPersistent allocates a buffer that survives CleanUp.
func (b *CPUBackend) AllocPersistent(size uint64) (native.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, native.ErrClosed
	}
	if err := b.mem.Reserve(size); err != nil {
		return nil, err
	}
	buf := &HostBuffer{data: make([]byte, size)}
	b.persistent[buf] = struct{}{}
	return buf, nil
}

// Free releases a persistent buffer.
func (b *CPUBackend) Free(buf native.Buffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return native.ErrClosed
	}
	hb, ok := buf.(*HostBuffer)
	if !ok {
		return native.ErrForeignBuffer
	}
	if _, ok := b.persistent[hb]; !ok {
		return native.ErrForeignBuffer
	}
	delete(b.persistent, hb)
	b.mem.Release(hb.Size())
	return nil
}

// CleanUp releases every temporary buffer of thread.
func (b *CPUBackend) CleanUp(thread native.ThreadID) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	if n := b.pools.Release(thread); n > 0 {
		b.log.Trace().Str("thread", string(thread)).Int("buffers", n).Msg("released scratch pool")
	}
}

// DeviceInfo implements native.Handle. CPU backends have no device.
func (b *CPUBackend) DeviceInfo() (native.DeviceInfo, bool) {
	return native.DeviceInfo{}, false
}

// CPUInfo reports the worker configuration and ISA features.
func (b *CPUBackend) CPUInfo() (native.CPUInfo, bool) {
	return native.CPUInfo{
		Threads:   b.cfg.NumWorkers,
		Requested: b.requested,
		Features:  slices.Clone(Features()),
	}, true
}

// Run executes fn for every i in [0, n) on the backend's workers.
func (b *CPUBackend) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if b.Closed() {
		return native.ErrClosed
	}
	return parallel.Run(ctx, n, fn, b.cfg)
}

// Close frees every buffer the backend still owns.
func (b *CPUBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return native.ErrClosed
	}
	b.closed = true

	n := b.pools.Drain()
	for buf := range b.persistent {
		b.mem.Release(buf.Size())
	}
	n += len(b.persistent)
	b.persistent = nil

	b.log.Debug().Int("buffers", n).Uint64("peak", b.mem.Peak()).Msg("cpu backend closed")
	return nil
}
