// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine selects and manages the compute engine a numeric library
// runs on.
//
// An Engine is either a CPU engine, backed by a worker pool, or a GPU engine
// bound to one device. Engines are created by a Factory over a
// native.Runtime:
//
//	rt, err := engine.System(nil)
//	if err != nil {
//	    return err
//	}
//	f := engine.NewFactory(rt)
//	for _, d := range f.Devices() {
//	    fmt.Println(d)
//	}
//	e, err := f.NewCPU(0) // one worker per logical CPU
//	if err != nil {
//	    return err
//	}
//	defer e.Close()
//
// Each engine keeps a temporary buffer pool per calling thread. Go has no
// goroutine-local storage, so the thread is carried in the context:
//
//	ctx = engine.WithThread(ctx)
//	buf, err := e.AllocTemporary(ctx, 1<<20)
//	...
//	err = e.CleanUp(ctx) // frees every temporary allocated by this thread
//
// An engine is Active from construction until Close. Every call on a closed
// engine fails with ErrInvalidState. A native handle belongs to at most one
// live engine in the process, whichever factory created it.
package engine
