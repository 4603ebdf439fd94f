// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nativetest

import (
	"sync"

	"github.com/born-ml/mathengine/internal/memstat"
	"github.com/born-ml/mathengine/internal/scratch"
	"github.com/born-ml/mathengine/native"
)

// Buffer is a fake allocation. It holds no memory.
type Buffer struct {
	size uint64
}

// Size returns the size of the buffer in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Handle is a fake native.Handle backed by real memory accounting.
type Handle struct {
	kind native.Kind
	cpu  native.CPUInfo
	gpu  native.DeviceInfo

	mem   *memstat.Tracker
	pools *scratch.Pools

	mu         sync.RWMutex
	closed     bool
	closes     int
	persistent map[*Buffer]struct{}
}

var (
	_ native.Handle        = (*Handle)(nil)
	_ native.StatsReporter = (*Handle)(nil)
)

// NewHandle creates a handle of the given kind without CPU or device info.
func NewHandle(kind native.Kind) *Handle {
	h := &Handle{
		kind:       kind,
		mem:        memstat.New(0),
		persistent: make(map[*Buffer]struct{}),
	}
	h.pools = scratch.New(allocator{h})
	return h
}

// NewCPUHandle creates a CPU handle with the given worker count.
func NewCPUHandle(threads int, memoryLimit uint64) *Handle {
	h := NewHandle(native.KindCPU)
	h.mem = memstat.New(memoryLimit)
	h.cpu = native.CPUInfo{Threads: threads, Requested: threads}
	return h
}

// NewGPUHandle creates a GPU handle for info.
func NewGPUHandle(info native.DeviceInfo, memoryLimit uint64) *Handle {
	h := NewHandle(native.KindGPU)
	h.mem = memstat.New(memoryLimit)
	h.gpu = info.Clone()
	return h
}

// Kind implements native.Handle.
func (h *Handle) Kind() native.Kind { return h.kind }

// Closed implements native.Handle.
func (h *Handle) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// Closes returns how many times Close was called.
func (h *Handle) Closes() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closes
}

// PeakMemoryUsage implements native.Handle.
func (h *Handle) PeakMemoryUsage() uint64 { return h.mem.Peak() }

// MemoryUsage implements native.Handle.
func (h *Handle) MemoryUsage() uint64 { return h.mem.InUse() }

// MemoryStats implements native.StatsReporter.
func (h *Handle) MemoryStats() native.MemoryStats {
	m, p := h.mem.Stats(), h.pools.Stats()
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

// Owned returns the number of temporary buffers held by thread.
func (h *Handle) Owned(thread native.ThreadID) int { return h.pools.Owned(thread) }

// AllocTemporary implements native.Handle.
func (h *Handle) AllocTemporary(thread native.ThreadID, size uint64) (native.Buffer, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, native.ErrClosed
	}
	return h.pools.Acquire(thread, size)
}

// Recycle implements native.Handle.
func (h *Handle) Recycle(thread native.ThreadID, buf native.Buffer) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.closed {
		h.pools.Recycle(thread, buf)
	}
}

// AllocPersistent implements native.Handle.
func (h *Handle) AllocPersistent(size uint64) (native.Buffer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, native.ErrClosed
	}
	if err := h.mem.Reserve(size); err != nil {
		return nil, err
	}
	b := &Buffer{size: size}
	h.persistent[b] = struct{}{}
	return b, nil
}

// Free implements native.Handle.
func (h *Handle) Free(buf native.Buffer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return native.ErrClosed
	}
	b, ok := buf.(*Buffer)
	if !ok {
		return native.ErrForeignBuffer
	}
	if _, ok := h.persistent[b]; !ok {
		return native.ErrForeignBuffer
	}
	delete(h.persistent, b)
	h.mem.Release(b.size)
	return nil
}

// CleanUp implements native.Handle.
func (h *Handle) CleanUp(thread native.ThreadID) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.closed {
		h.pools.Release(thread)
	}
}

// DeviceInfo implements native.Handle.
func (h *Handle) DeviceInfo() (native.DeviceInfo, bool) {
	if h.kind != native.KindGPU || h.gpu.Name == "" {
		return native.DeviceInfo{}, false
	}
	return h.gpu.Clone(), true
}

// CPUInfo implements native.Handle.
func (h *Handle) CPUInfo() (native.CPUInfo, bool) {
	if h.kind != native.KindCPU || h.cpu.Threads == 0 {
		return native.CPUInfo{}, false
	}
	return h.cpu, true
}

// Close implements native.Handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	if h.closed {
		return native.ErrClosed
	}
	h.closed = true
	h.pools.Drain()
	for b := range h.persistent {
		h.mem.Release(b.size)
	}
	h.persistent = nil
	return nil
}

type allocator struct {
	h *Handle
}

func (a allocator) Alloc(size uint64) (native.Buffer, error) {
	if err := a.h.mem.Reserve(size); err != nil {
		return nil, err
	}
	return &Buffer{size: size}, nil
}

func (a allocator) Free(buf native.Buffer) {
	a.h.mem.Release(buf.Size())
}
