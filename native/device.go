// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package native

import (
	"fmt"
	"maps"
	"strings"
)

// DeviceType is the API family a GPU is driven through.
type DeviceType int

// Supported device types.
const (
	DeviceUndefined DeviceType = iota
	DeviceCUDA
	DeviceVulkan
	DeviceMetal
	DeviceWebGPU
)

// String returns a human-readable device type name.
func (d DeviceType) String() string {
	switch d {
	case DeviceCUDA:
		return "CUDA"
	case DeviceVulkan:
		return "Vulkan"
	case DeviceMetal:
		return "Metal"
	case DeviceWebGPU:
		return "WebGPU"
	default:
		return "Undefined"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d DeviceType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DeviceType) UnmarshalText(text []byte) error {
	for t := DeviceUndefined; t <= DeviceWebGPU; t++ {
		if strings.EqualFold(t.String(), string(text)) {
			*d = t
			return nil
		}
	}
	return fmt.Errorf("native: unknown device type %q", text)
}

// DeviceInfo describes one GPU as reported by the runtime.
type DeviceInfo struct {
	// Index is the position of the device in Runtime.EnumerateGPUs.
	Index int `json:"index"`

	// Name is the device name as labeled by the driver.
	Name string `json:"name"`

	Type DeviceType `json:"type"`

	Vendor      string `json:"vendor,omitempty"`
	Description string `json:"description,omitempty"`

	// TotalMemory is the device memory in bytes, or 0 when the runtime
	// cannot report it.
	TotalMemory uint64 `json:"total_memory"`

	// Integrated is set for GPUs sharing memory with the host.
	Integrated bool `json:"integrated,omitempty"`

	Driver string `json:"driver,omitempty"`

	// Capabilities holds runtime specific fields (architecture, backend API,
	// PCI IDs).
	Capabilities map[string]string `json:"capabilities,omitempty"`
}

// Clone returns a deep copy of d.
func (d DeviceInfo) Clone() DeviceInfo {
	d.Capabilities = maps.Clone(d.Capabilities)
	return d
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("gpu%d %s (%s)", d.Index, d.Name, d.Type)
}

// CPUInfo describes an open CPU backend.
type CPUInfo struct {
	// Threads is the resolved worker count.
	Threads int `json:"threads"`

	// Requested is the thread count passed to OpenCPU; 0 means automatic.
	Requested int `json:"requested"`

	// Features lists the instruction set extensions available to kernels.
	Features []string `json:"features,omitempty"`
}
