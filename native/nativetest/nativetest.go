// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nativetest provides a scriptable native runtime for tests.
//
// The fake records every call made into it, so tests can assert that a
// rejected request never reached the runtime.
package nativetest

import (
	"fmt"
	"sync"

	"github.com/born-ml/mathengine/native"
)

// Call is one recorded runtime call.
type Call struct {
	Op  string
	Arg int
}

// Runtime is a fake native.Runtime.
type Runtime struct {
	mu      sync.Mutex
	devices []native.DeviceInfo
	calls   []Call
	handles []*Handle

	// CPUError, when set, is returned by OpenCPU.
	CPUError error
	// GPUError, when set, is returned by OpenGPU for valid indices.
	GPUError error
	// DefaultKind selects what Default opens. KindUnknown means CPU.
	DefaultKind native.Kind
}

var _ native.Runtime = (*Runtime)(nil)

// New creates a fake runtime reporting the given GPUs. Device indices are
// renumbered to match their position.
func New(devices ...native.DeviceInfo) *Runtime {
	r := &Runtime{}
	for i, d := range devices {
		d = d.Clone()
		d.Index = i
		r.devices = append(r.devices, d)
	}
	return r
}

// GPU returns a device description for use with New.
func GPU(name string, memory uint64) native.DeviceInfo {
	return native.DeviceInfo{
		Name:         name,
		Type:         native.DeviceCUDA,
		Vendor:       "fake",
		TotalMemory:  memory,
		Capabilities: map[string]string{"compute": "8.6"},
	}
}

func (r *Runtime) record(op string, arg int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: op, Arg: arg})
}

// Calls returns the calls made so far.
func (r *Runtime) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallCount returns how many calls of op were made.
func (r *Runtime) CallCount(op string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Handles returns every handle the runtime opened.
func (r *Runtime) Handles() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Handle(nil), r.handles...)
}

func (r *Runtime) track(h *Handle) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = append(r.handles, h)
	return h
}

// OpenCPU implements native.Runtime.
func (r *Runtime) OpenCPU(threadCount int, memoryLimit uint64) (native.Handle, error) {
	r.record("OpenCPU", threadCount)
	if r.CPUError != nil {
		return nil, r.CPUError
	}
	if threadCount < 0 {
		return nil, fmt.Errorf("nativetest: negative thread count %d", threadCount)
	}
	threads := threadCount
	if threads == 0 {
		threads = 4
	}
	h := NewCPUHandle(threads, memoryLimit)
	h.cpu.Requested = threadCount
	return r.track(h), nil
}

// OpenGPU implements native.Runtime.
func (r *Runtime) OpenGPU(index int, memoryLimit uint64) (native.Handle, error) {
	r.record("OpenGPU", index)
	if index < 0 || index >= len(r.devices) {
		return nil, native.ErrNoDevice
	}
	if r.GPUError != nil {
		return nil, r.GPUError
	}
	return r.track(NewGPUHandle(r.devices[index], memoryLimit)), nil
}

// EnumerateGPUs implements native.Runtime.
func (r *Runtime) EnumerateGPUs() []native.DeviceInfo {
	r.record("EnumerateGPUs", len(r.devices))
	out := make([]native.DeviceInfo, len(r.devices))
	for i, d := range r.devices {
		out[i] = d.Clone()
	}
	return out
}

// Default implements native.Runtime.
func (r *Runtime) Default(memoryLimit uint64) (native.Handle, error) {
	r.record("Default", 0)
	if r.DefaultKind == native.KindGPU {
		return r.OpenGPU(0, memoryLimit)
	}
	return r.OpenCPU(0, memoryLimit)
}
