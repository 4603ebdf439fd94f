package cpu

import (
	"github.com/rs/zerolog"

	"github.com/born-ml/mathengine/native"
)

// Runtime opens CPU backends. It reports no GPUs.
type Runtime struct {
	log zerolog.Logger
}

var _ native.Runtime = (*Runtime)(nil)

// New creates a CPU runtime.
func New(log zerolog.Logger) *Runtime {
	return &Runtime{log: log}
}

// OpenCPU implements native.Runtime.
func (r *Runtime) OpenCPU(threadCount int, memoryLimit uint64) (native.Handle, error) {
	b, err := Open(threadCount, memoryLimit, r.log)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// OpenGPU implements native.Runtime. The CPU runtime has no GPUs.
func (r *Runtime) OpenGPU(int, uint64) (native.Handle, error) {
	return nil, native.ErrNoDevice
}

// EnumerateGPUs implements native.Runtime.
func (r *Runtime) EnumerateGPUs() []native.DeviceInfo {
	return []native.DeviceInfo{}
}

// Default opens an automatically sized CPU backend.
func (r *Runtime) Default(memoryLimit uint64) (native.Handle, error) {
	return r.OpenCPU(0, memoryLimit)
}
