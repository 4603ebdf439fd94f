// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package native

import "context"

// Kind identifies the backend family of an open handle.
type Kind int

// Supported backend kinds.
const (
	KindUnknown Kind = iota
	KindCPU
	KindGPU
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindGPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// ThreadID names the owner of a temporary buffer pool.
type ThreadID string

// MainThread is the pool used when the caller did not attach a ThreadID.
const MainThread ThreadID = "main"

// Buffer is a block of backend memory.
type Buffer interface {
	// Size returns the size of the buffer in bytes.
	Size() uint64
}

// Runtime opens native backends.
//
// Construction and enumeration are not required to be safe for concurrent
// use against the same physical backend; callers serialize them.
type Runtime interface {
	// OpenCPU opens a CPU backend. threadCount 0 lets the runtime choose.
	// memoryLimit 0 means unlimited.
	OpenCPU(threadCount int, memoryLimit uint64) (Handle, error)

	// OpenGPU opens the GPU at position index of EnumerateGPUs.
	OpenGPU(index int, memoryLimit uint64) (Handle, error)

	// EnumerateGPUs lists the available GPUs. It returns an empty slice when
	// there is no GPU runtime or hardware. The order is stable for the
	// lifetime of the process.
	EnumerateGPUs() []DeviceInfo

	// Default opens the backend the runtime prefers.
	Default(memoryLimit uint64) (Handle, error)
}

// Handle is an open backend. A Handle has exactly one owner.
//
// All methods are safe for concurrent use. After Close every method other
// than Kind and Closed returns ErrClosed or a zero value.
type Handle interface {
	Kind() Kind
	Closed() bool

	// PeakMemoryUsage returns the high-water mark of bytes in use since the
	// handle was opened. It never decreases.
	PeakMemoryUsage() uint64

	// MemoryUsage returns the bytes currently in use.
	MemoryUsage() uint64

	// AllocTemporary allocates a buffer in the pool of thread.
	AllocTemporary(thread ThreadID, size uint64) (Buffer, error)

	// Recycle returns a temporary buffer to the free list of thread so a later
	// AllocTemporary on the same thread can reuse it.
	Recycle(thread ThreadID, buf Buffer)

	// AllocPersistent allocates a buffer that is not owned by any thread pool.
	AllocPersistent(size uint64) (Buffer, error)

	// Free releases a persistent buffer.
	Free(buf Buffer) error

	// CleanUp releases every temporary buffer of thread. It is a no-op when
	// the thread has nothing allocated.
	CleanUp(thread ThreadID)

	// DeviceInfo reports the device behind a GPU handle.
	DeviceInfo() (DeviceInfo, bool)

	// CPUInfo reports the configuration of a CPU handle.
	CPUInfo() (CPUInfo, bool)

	// Close releases the backend.
	Close() error
}

// Runner is implemented by handles that own a worker pool.
type Runner interface {
	// Run calls fn for every i in [0, n) using at most the handle's worker
	// count concurrently. The first error cancels the context passed to the
	// remaining calls and is returned.
	Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error
}

// MemoryStats is a detailed snapshot of a handle's memory accounting.
type MemoryStats struct {
	InUse         uint64 `json:"in_use"`
	Peak          uint64 `json:"peak"`
	Limit         uint64 `json:"limit,omitempty"`
	Allocations   uint64 `json:"allocations"`
	ActiveBuffers int64  `json:"active_buffers"`

	// Scratch pool counters.
	Threads       int    `json:"threads"`
	PooledBuffers int    `json:"pooled_buffers"`
	PoolHits      uint64 `json:"pool_hits"`
	PoolMisses    uint64 `json:"pool_misses"`
}

// StatsReporter is implemented by handles that report more than peak and
// current usage.
type StatsReporter interface {
	MemoryStats() MemoryStats
}
