// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"github.com/rs/zerolog"

	internalcpu "github.com/born-ml/mathengine/internal/backend/cpu"
	"github.com/born-ml/mathengine/native"
)

// Backend is an open CPU backend.
type Backend = internalcpu.CPUBackend

// Runtime opens CPU backends.
type Runtime = internalcpu.Runtime

// Compile-time checks.
var (
	_ native.Handle  = (*Backend)(nil)
	_ native.Runner  = (*Backend)(nil)
	_ native.Runtime = (*Runtime)(nil)
)

// New creates a CPU runtime. An optional logger receives backend events.
func New(log ...zerolog.Logger) *Runtime {
	l := zerolog.Nop()
	if len(log) > 0 {
		l = log[0]
	}
	return internalcpu.New(l)
}

// Open creates a CPU backend directly, for use with engine.Factory.Adapt.
//
// Example:
//
//	b, err := cpu.Open(8, 2<<30)
//	if err != nil {
//	    return err
//	}
//	e, err := factory.Adapt(b)
func Open(threads int, memoryLimit uint64) (*Backend, error) {
	return internalcpu.Open(threads, memoryLimit, zerolog.Nop())
}
