// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/born-ml/mathengine/native"
)

// Kind is the variant of an engine.
type Kind = native.Kind

// Engine kinds.
const (
	CPU = native.KindCPU
	GPU = native.KindGPU
)

// State is the lifecycle state of an engine.
type State int

// Engine states. StateUninitialized is only observed inside a Factory.
const (
	StateUninitialized State = iota
	StateActive
	StateDisposed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type gpuSlot struct {
	index int
	info  native.DeviceInfo
}

// Engine is a CPU or GPU compute engine. It exclusively owns its native
// handle. Methods are safe for concurrent use.
//
// Close waits for running calls, including Parallel, before it releases the
// handle. Once Close has started, every call fails with ErrInvalidState, so
// Parallel workers that call back into the engine see ErrInvalidState and
// are expected to return. A Parallel worker must not call Close itself.
type Engine struct {
	id      string
	kind    Kind
	threads int      // CPU only
	gpu     *gpuSlot // GPU only
	handle  native.Handle
	factory *Factory
	key     any // ownership key, nil when the handle cannot be tracked

	mu    sync.RWMutex
	state State

	// running counts Parallel calls, which do not hold mu while workers run.
	running sync.WaitGroup
}

// ID returns the engine identifier.
func (e *Engine) ID() string { return e.id }

// Kind returns CPU or GPU.
func (e *Engine) Kind() Kind { return e.kind }

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// ThreadCount returns the worker count of a CPU engine, 0 for GPU engines.
func (e *Engine) ThreadCount() int { return e.threads }

// String returns a short description of the engine.
func (e *Engine) String() string {
	switch e.kind {
	case GPU:
		return fmt.Sprintf("gpu engine %s (gpu%d %s)", shortID(e.id), e.gpu.index, e.gpu.info.Name)
	default:
		return fmt.Sprintf("cpu engine %s (%d threads)", shortID(e.id), e.threads)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// active must be called with e.mu held.
func (e *Engine) active(op string) error {
	if e.state != StateActive {
		return &Error{Op: op, Engine: e.id, Kind: e.kind, Err: ErrInvalidState, Detail: e.state.String()}
	}
	return nil
}

func (e *Engine) wrap(op string, err error) error {
	return &Error{Op: op, Engine: e.id, Kind: e.kind, Err: classify(err), Cause: err}
}

// PeakMemoryUsage returns the highest number of bytes the engine has had in
// use since construction. It never decreases.
func (e *Engine) PeakMemoryUsage() (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.active("PeakMemoryUsage"); err != nil {
		return 0, err
	}
	return e.handle.PeakMemoryUsage(), nil
}

// MemoryUsage returns the number of bytes currently in use.
func (e *Engine) MemoryUsage() (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.active("MemoryUsage"); err != nil {
		return 0, err
	}
	return e.handle.MemoryUsage(), nil
}

// MemoryStats returns a detailed memory snapshot. Handles that only report
// peak and current usage leave the allocation and pool counters zero.
func (e *Engine) MemoryStats() (native.MemoryStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.active("MemoryStats"); err != nil {
		return native.MemoryStats{}, err
	}
	if r, ok := e.handle.(native.StatsReporter); ok {
		return r.MemoryStats(), nil
	}
	return native.MemoryStats{
		InUse: e.handle.MemoryUsage(),
		Peak:  e.handle.PeakMemoryUsage(),
	}, nil
}

// CleanUp releases every temporary buffer of the thread carried by ctx.
// Persistent allocations and other threads are unaffected. Calling it again
// is a no-op.
func (e *Engine) CleanUp(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.active("CleanUp"); err != nil {
		return err
	}
	e.handle.CleanUp(ThreadFrom(ctx))
	e.factory.metrics.cleanedUp(e.kind)
	return nil
}

// DeviceInfo describes the device of a GPU engine. CPU engines fail with
// ErrUnsupportedOperation.
func (e *Engine) DeviceInfo() (native.DeviceInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.active("DeviceInfo"); err != nil {
		return native.DeviceInfo{}, err
	}
	switch e.kind {
	case GPU:
		return e.gpu.info.Clone(), nil
	default:
		return native.DeviceInfo{}, &Error{Op: "DeviceInfo", Engine: e.id, Kind: e.kind, Err: ErrUnsupportedOperation}
	}
}

// CPUInfo describes the worker pool of a CPU engine. GPU engines fail with
// ErrUnsupportedOperation.
func (e *Engine) CPUInfo() (native.CPUInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.active("CPUInfo"); err != nil {
		return native.CPUInfo{}, err
	}
	if e.kind != CPU {
		return native.CPUInfo{}, &Error{Op: "CPUInfo", Engine: e.id, Kind: e.kind, Err: ErrUnsupportedOperation}
	}
	info, ok := e.handle.CPUInfo()
	if !ok {
		return native.CPUInfo{Threads: e.threads}, nil
	}
	return info, nil
}

// AllocTemporary allocates a buffer owned by the thread carried by ctx.
func (e *Engine) AllocTemporary(ctx context.Context, size uint64) (native.Buffer, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.active("AllocTemporary"); err != nil {
		return nil, err
	}
	buf, err := e.handle.AllocTemporary(ThreadFrom(ctx), size)
	if err != nil {
		return nil, e.wrap("AllocTemporary", err)
	}
	return buf, nil
}

// Recycle returns a temporary buffer to the pool of the thread carried by
// ctx for reuse. The buffer stays accounted until CleanUp.
func (e *Engine) Recycle(ctx context.Context, buf native.Buffer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.active("Recycle"); err != nil {
		return err
	}
	if buf == nil {
		return &Error{Op: "Recycle", Engine: e.id, Kind: e.kind, Err: ErrInvalidArgument, Detail: "nil buffer"}
	}
	e.handle.Recycle(ThreadFrom(ctx), buf)
	return nil
}

// AllocPersistent allocates a buffer that lives until Free or Close.
func (e *Engine) AllocPersistent(size uint64) (native.Buffer, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.active("AllocPersistent"); err != nil {
		return nil, err
	}
	buf, err := e.handle.AllocPersistent(size)
	if err != nil {
		return nil, e.wrap("AllocPersistent", err)
	}
	return buf, nil
}

// Free releases a buffer returned by AllocPersistent.
func (e *Engine) Free(buf native.Buffer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.active("Free"); err != nil {
		return err
	}
	if buf == nil {
		return &Error{Op: "Free", Engine: e.id, Kind: e.kind, Err: ErrInvalidArgument, Detail: "nil buffer"}
	}
	if err := e.handle.Free(buf); err != nil {
		return e.wrap("Free", err)
	}
	return nil
}

// Parallel calls fn for every i in [0, n) on the worker pool of a CPU
// engine. The first error cancels the remaining calls and is returned.
// GPU engines fail with ErrUnsupportedOperation.
//
// The engine lock is not held while fn runs, so workers may call any other
// method. After Close has started those calls fail with ErrInvalidState.
func (e *Engine) Parallel(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	r, err := e.enterParallel(n, fn)
	if err != nil {
		return err
	}
	defer e.running.Done()

	if r != nil {
		return r.Run(ctx, n, fn)
	}
	for i := range n {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// enterParallel validates a Parallel call and registers it as running.
func (e *Engine) enterParallel(n int, fn func(ctx context.Context, i int) error) (native.Runner, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.active("Parallel"); err != nil {
		return nil, err
	}
	if e.kind != CPU {
		return nil, &Error{Op: "Parallel", Engine: e.id, Kind: e.kind, Err: ErrUnsupportedOperation}
	}
	if n < 0 || fn == nil {
		return nil, &Error{Op: "Parallel", Engine: e.id, Kind: e.kind, Err: ErrInvalidArgument, Detail: fmt.Sprintf("n=%d", n)}
	}

	// Add happens before Close can flip the state, so Close's Wait sees it.
	e.running.Add(1)
	r, _ := e.handle.(native.Runner)
	return r, nil
}

// Close releases the native handle and every buffer allocated through it.
// It waits for running Parallel calls first. Closing a disposed engine fails
// with ErrInvalidState.
func (e *Engine) Close() error {
	e.mu.Lock()
	if err := e.active("Close"); err != nil {
		e.mu.Unlock()
		return err
	}
	e.state = StateDisposed
	e.mu.Unlock()

	e.factory.release(e)
	e.running.Wait()

	err := e.handle.Close()
	handles.release(e.key)
	if err != nil {
		e.factory.log.Warn().Err(err).Str("engine", e.id).Msg("native close failed")
		return e.wrap("Close", err)
	}
	e.factory.log.Debug().Str("engine", e.id).Stringer("kind", e.kind).Msg("engine disposed")
	return nil
}
