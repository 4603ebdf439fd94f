// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package native defines the contract between the engine layer and a native
// compute runtime.
//
// # Overview
//
// A Runtime opens backends and enumerates GPUs. Each open backend is a Handle:
// an exclusively owned resource that tracks memory, keeps one temporary
// buffer pool per ThreadID and is released with Close.
//
// Implementations:
//   - backend/cpu: pure Go worker pool with host-memory scratch pools
//   - backend/webgpu: GPU device via WebGPU (windows builds)
//   - engine.System: host runtime combining both
//   - native/nativetest: scriptable fake for tests
//
// # Threads
//
// Go has no goroutine-local storage, so a "thread" is an explicit ThreadID.
// The engine package carries it in a context.Context (engine.WithThread).
// Callers that never attach one share MainThread.
package native
