// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU runtime.
//
// # Overview
//
// A CPU backend owns:
//   - A worker pool sized to the requested thread count (0 = one worker per
//     logical CPU)
//   - One temporary buffer pool per calling thread
//   - Memory accounting with an optional limit and a peak high-water mark
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/mathengine/backend/cpu"
//	    "github.com/born-ml/mathengine/engine"
//	)
//
//	func main() {
//	    f := engine.NewFactory(cpu.New())
//	    e, err := f.NewCPU(4)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer e.Close()
//	}
//
// The runtime reports no GPUs. Use engine.System for a runtime that also
// enumerates WebGPU adapters.
//
// # Thread Safety
//
// Backends are safe for concurrent use. Temporary buffers belong to the
// thread that allocated them.
package cpu
