// Package system composes the CPU and WebGPU runtimes into the runtime used
// by default engine factories.
//
// GPUs can be hidden with a visible-device list. Surviving devices are
// renumbered densely, so index i always addresses the i-th visible device.
package system

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/born-ml/mathengine/internal/backend/cpu"
	"github.com/born-ml/mathengine/internal/backend/webgpu"
	"github.com/born-ml/mathengine/native"
)

// Policy selects the backend opened by Default.
type Policy string

// Default engine policies.
const (
	PolicyCPU  Policy = "cpu"
	PolicyGPU  Policy = "gpu"
	PolicyAuto Policy = "auto"
)

// ParsePolicy converts s to a Policy. The empty string means PolicyCPU.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return PolicyCPU, nil
	case PolicyCPU, PolicyGPU, PolicyAuto:
		return p, nil
	default:
		return "", fmt.Errorf("system: unknown default engine %q", s)
	}
}

// Options configures a Runtime.
type Options struct {
	// DefaultEngine is the policy used by Default.
	DefaultEngine Policy
	// VisibleDevices lists the native GPU indices to expose. nil exposes all.
	VisibleDevices []int
	// DisableGPU hides every GPU.
	DisableGPU bool
	Logger     zerolog.Logger
}

// Runtime is the host runtime.
type Runtime struct {
	cpu  native.Runtime
	gpu  native.Runtime
	opts Options
	log  zerolog.Logger
}

var _ native.Runtime = (*Runtime)(nil)

// New creates a runtime over the CPU backend and the WebGPU backend.
func New(opts Options) *Runtime {
	return Compose(cpu.New(opts.Logger), webgpu.New(opts.Logger), opts)
}

// Compose creates a runtime over the given CPU and GPU runtimes. gpuRT may
// be nil.
func Compose(cpuRT, gpuRT native.Runtime, opts Options) *Runtime {
	if opts.DefaultEngine == "" {
		opts.DefaultEngine = PolicyCPU
	}
	return &Runtime{
		cpu:  cpuRT,
		gpu:  gpuRT,
		opts: opts,
		log:  opts.Logger.With().Str("component", "system").Logger(),
	}
}

// Policy returns the default engine policy.
func (r *Runtime) Policy() Policy {
	return r.opts.DefaultEngine
}

// visible returns the exposed devices, renumbered, together with their
// native indices.
func (r *Runtime) visible() ([]native.DeviceInfo, []int) {
	if r.opts.DisableGPU || r.gpu == nil {
		return []native.DeviceInfo{}, nil
	}

	all := r.gpu.EnumerateGPUs()
	devices := make([]native.DeviceInfo, 0, len(all))
	indices := make([]int, 0, len(all))
	for i, d := range all {
		if r.opts.VisibleDevices != nil && !slices.Contains(r.opts.VisibleDevices, i) {
			continue
		}
		d = d.Clone()
		d.Index = len(devices)
		devices = append(devices, d)
		indices = append(indices, i)
	}
	return devices, indices
}

// EnumerateGPUs implements native.Runtime.
func (r *Runtime) EnumerateGPUs() []native.DeviceInfo {
	devices, _ := r.visible()
	return devices
}

// OpenCPU implements native.Runtime.
func (r *Runtime) OpenCPU(threadCount int, memoryLimit uint64) (native.Handle, error) {
	return r.cpu.OpenCPU(threadCount, memoryLimit)
}

// OpenGPU implements native.Runtime. index addresses the visible devices.
func (r *Runtime) OpenGPU(index int, memoryLimit uint64) (native.Handle, error) {
	devices, indices := r.visible()
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("system: gpu %d of %d visible: %w", index, len(devices), native.ErrNoDevice)
	}

	h, err := r.gpu.OpenGPU(indices[index], memoryLimit)
	if err != nil {
		return nil, err
	}
	if indices[index] == index {
		return h, nil
	}
	return &visibleHandle{Handle: h, index: index}, nil
}

// Default implements native.Runtime according to the configured policy.
func (r *Runtime) Default(memoryLimit uint64) (native.Handle, error) {
	switch r.opts.DefaultEngine {
	case PolicyGPU:
		return r.OpenGPU(0, memoryLimit)
	case PolicyAuto:
		if len(r.EnumerateGPUs()) > 0 {
			h, err := r.OpenGPU(0, memoryLimit)
			if err == nil {
				return h, nil
			}
			r.log.Warn().Err(err).Msg("gpu unavailable, falling back to cpu")
		}
		return r.OpenCPU(0, memoryLimit)
	default:
		return r.OpenCPU(0, memoryLimit)
	}
}

// visibleHandle reports the visible index of a renumbered device.
type visibleHandle struct {
	native.Handle
	index int
}

func (h *visibleHandle) DeviceInfo() (native.DeviceInfo, bool) {
	info, ok := h.Handle.DeviceInfo()
	if !ok {
		return info, false
	}
	info.Index = h.index
	return info, true
}
