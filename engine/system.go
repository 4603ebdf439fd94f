// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"github.com/rs/zerolog"

	"github.com/born-ml/mathengine/internal/backend/system"
	"github.com/born-ml/mathengine/native"
)

// SystemOptions configures the host runtime returned by System.
type SystemOptions struct {
	// DefaultEngine is the policy of Factory.Default: "cpu" (default),
	// "gpu" or "auto". "auto" opens GPU 0 when one is usable and falls back
	// to the CPU otherwise.
	DefaultEngine string

	// VisibleDevices restricts the GPUs to these host indices. Visible
	// devices are renumbered from 0. nil exposes every GPU.
	VisibleDevices []int

	// DisableGPU hides every GPU.
	DisableGPU bool

	Logger zerolog.Logger
}

// System returns the host runtime: the pure Go CPU backend and, where the
// platform supports it, the WebGPU backend. nil opts selects the defaults.
func System(opts *SystemOptions) (native.Runtime, error) {
	if opts == nil {
		opts = &SystemOptions{Logger: zerolog.Nop()}
	}
	policy, err := system.ParsePolicy(opts.DefaultEngine)
	if err != nil {
		return nil, invalidArgument("System", native.KindUnknown, "%v", err)
	}
	return system.New(system.Options{
		DefaultEngine:  policy,
		VisibleDevices: opts.VisibleDevices,
		DisableGPU:     opts.DisableGPU,
		Logger:         opts.Logger,
	}), nil
}
