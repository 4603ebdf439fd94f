//go:build windows

package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/rs/zerolog"

	"github.com/born-ml/mathengine/internal/memstat"
	"github.com/born-ml/mathengine/internal/scratch"
	"github.com/born-ml/mathengine/native"
)

const bufferUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// Backend is an open WebGPU device.
type Backend struct {
	info native.DeviceInfo

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	mem   *memstat.Tracker
	pools *scratch.Pools

	mu         sync.RWMutex
	closed     bool
	persistent map[*DeviceBuffer]struct{}

	log zerolog.Logger
}

var (
	_ native.Handle        = (*Backend)(nil)
	_ native.StatsReporter = (*Backend)(nil)
)

// DeviceBuffer is a storage buffer on the device.
type DeviceBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
}

// Size returns the size of the buffer in bytes.
func (d *DeviceBuffer) Size() uint64 {
	return d.size
}

func open(info native.DeviceInfo, memoryLimit uint64, log zerolog.Logger) (handle native.Handle, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			handle = nil
			err = fmt.Errorf("webgpu: native library not available: %v: %w", r, native.ErrUnavailable)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %v: %w", instanceErr, native.ErrUnavailable)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: powerPreference(info),
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	b := &Backend{
		info:       info,
		instance:   instance,
		adapter:    adapter,
		device:     device,
		queue:      queue,
		mem:        memstat.New(memoryLimit),
		persistent: make(map[*DeviceBuffer]struct{}),
		log:        log.With().Int("device", info.Index).Str("name", info.Name).Logger(),
	}
	b.pools = scratch.New(deviceAllocator{b})
	b.log.Debug().Uint64("memory_limit", memoryLimit).Msg("webgpu device opened")
	return b, nil
}

// Kind implements native.Handle.
func (b *Backend) Kind() native.Kind {
	return native.KindGPU
}

// Closed reports whether Close has been called.
func (b *Backend) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// PeakMemoryUsage returns the high-water mark of device memory in use.
func (b *Backend) PeakMemoryUsage() uint64 {
	return b.mem.Peak()
}

// MemoryUsage returns the device memory currently in use.
func (b *Backend) MemoryUsage() uint64 {
	return b.mem.InUse()
}

// MemoryStats implements native.StatsReporter.
func (b *Backend) MemoryStats() native.MemoryStats {
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

// AllocTemporary allocates a storage buffer in the pool of thread.
func (b *Backend) AllocTemporary(thread native.ThreadID, size uint64) (native.Buffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, native.ErrClosed
	}
	return b.pools.Acquire(thread, size)
}

// Recycle returns a temporary buffer to the free list of thread.
func (b *Backend) Recycle(thread native.ThreadID, buf native.Buffer) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.pools.Recycle(thread, buf)
}

// AllocPersistent allocates a storage buffer that survives CleanUp.
func (b *Backend) AllocPersistent(size uint64) (native.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, native.ErrClosed
	}
	buf, err := deviceAllocator{b}.Alloc(size)
	if err != nil {
		return nil, err
	}
	db := buf.(*DeviceBuffer)
	b.persistent[db] = struct{}{}
	return db, nil
}

// Free releases a persistent buffer.
func (b *Backend) Free(buf native.Buffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return native.ErrClosed
	}
	db, ok := buf.(*DeviceBuffer)
	if !ok {
		return native.ErrForeignBuffer
	}
	if _, ok := b.persistent[db]; !ok {
		return native.ErrForeignBuffer
	}
	delete(b.persistent, db)
	deviceAllocator{b}.Free(db)
	return nil
}

// CleanUp releases every temporary buffer of thread.
func (b *Backend) CleanUp(thread native.ThreadID) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.pools.Release(thread)
}

// DeviceInfo reports the adapter behind the backend.
func (b *Backend) DeviceInfo() (native.DeviceInfo, bool) {
	return b.info.Clone(), true
}

// CPUInfo implements native.Handle. GPU backends have no CPU info.
func (b *Backend) CPUInfo() (native.CPUInfo, bool) {
	return native.CPUInfo{}, false
}

// Close releases all WebGPU resources.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return native.ErrClosed
	}
	b.closed = true

	b.pools.Drain()
	for buf := range b.persistent {
		deviceAllocator{b}.Free(buf)
	}
	b.persistent = nil

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}

	b.log.Debug().Uint64("peak", b.mem.Peak()).Msg("webgpu device closed")
	return nil
}

type deviceAllocator struct {
	b *Backend
}

func (a deviceAllocator) Alloc(size uint64) (native.Buffer, error) {
	if err := a.b.mem.Reserve(size); err != nil {
		return nil, err
	}
	buffer := a.b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: bufferUsage,
		Size:  size,
	})
	if buffer == nil {
		a.b.mem.Release(size)
		return nil, fmt.Errorf("webgpu: create buffer of %d bytes: %w", size, native.ErrOutOfMemory)
	}
	return &DeviceBuffer{buffer: buffer, size: size}, nil
}

func (a deviceAllocator) Free(buf native.Buffer) {
	db, ok := buf.(*DeviceBuffer)
	if !ok {
		return
	}
	db.buffer.Release()
	a.b.mem.Release(db.size)
}
