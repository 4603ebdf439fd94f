// Package webgpu implements the WebGPU native runtime.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
// On platforms without the bindings the runtime reports no GPUs.
package webgpu

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/born-ml/mathengine/native"
)

// Runtime opens WebGPU devices.
type Runtime struct {
	log zerolog.Logger
}

var _ native.Runtime = (*Runtime)(nil)

// New creates a WebGPU runtime.
func New(log zerolog.Logger) *Runtime {
	return &Runtime{log: log.With().Str("backend", "webgpu").Logger()}
}

// EnumerateGPUs returns the adapters found by the first enumeration of the
// process.
func (r *Runtime) EnumerateGPUs() []native.DeviceInfo {
	devices := adapters()
	out := make([]native.DeviceInfo, len(devices))
	for i, d := range devices {
		out[i] = d.Clone()
	}
	return out
}

// OpenGPU opens the adapter at index.
func (r *Runtime) OpenGPU(index int, memoryLimit uint64) (native.Handle, error) {
	devices := adapters()
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("webgpu: device %d of %d: %w", index, len(devices), native.ErrNoDevice)
	}
	b, err := open(devices[index].Clone(), memoryLimit, r.log)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// OpenCPU implements native.Runtime. WebGPU has no CPU backend.
func (r *Runtime) OpenCPU(int, uint64) (native.Handle, error) {
	return nil, fmt.Errorf("webgpu: cpu backend: %w", native.ErrUnavailable)
}

// Default opens the first adapter.
func (r *Runtime) Default(memoryLimit uint64) (native.Handle, error) {
	return r.OpenGPU(0, memoryLimit)
}

// IsAvailable reports whether at least one adapter was found.
func IsAvailable() bool {
	return len(adapters()) > 0
}
