// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU runtime for GPU engines.
//
// WebGPU is a cross-platform graphics and compute API that works on:
//   - Windows (via wgpu-native/D3D12 or Vulkan)
//   - macOS (via Metal)
//   - Linux (via Vulkan)
//
// The bindings are currently loaded on Windows only. Elsewhere the runtime
// enumerates no adapters and every open fails with native.ErrUnavailable.
//
// Example:
//
//	import (
//	    "github.com/born-ml/mathengine/backend/webgpu"
//	    "github.com/born-ml/mathengine/engine"
//	)
//
//	func main() {
//	    f := engine.NewFactory(webgpu.New())
//	    for _, d := range f.Devices() {
//	        fmt.Println(d)
//	    }
//	    gpu, err := f.NewGPU(0)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Close()
//	}
package webgpu

import (
	"github.com/rs/zerolog"

	internalwebgpu "github.com/born-ml/mathengine/internal/backend/webgpu"
	"github.com/born-ml/mathengine/native"
)

// Runtime opens WebGPU devices.
type Runtime = internalwebgpu.Runtime

// Compile-time check that Runtime implements native.Runtime.
var _ native.Runtime = (*Runtime)(nil)

// New creates a WebGPU runtime. An optional logger receives backend events.
func New(log ...zerolog.Logger) *Runtime {
	l := zerolog.Nop()
	if len(log) > 0 {
		l = log[0]
	}
	return internalwebgpu.New(l)
}

// IsAvailable checks if WebGPU is available on the current system.
//
// It is useful for graceful fallback to the CPU:
//
//	if webgpu.IsAvailable() {
//	    e, err = f.NewGPU(0)
//	} else {
//	    e, err = f.NewCPU(0)
//	}
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
