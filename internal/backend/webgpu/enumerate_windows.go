//go:build windows

package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/mathengine/native"
)

var preferences = []struct {
	name string
	pref wgpu.PowerPreference
}{
	{"high-performance", wgpu.PowerPreferenceHighPerformance},
	{"low-power", wgpu.PowerPreferenceLowPower},
}

// adapters enumerates once per process. WebGPU has no way to list every
// adapter, so the high-performance and low-power adapters are requested and
// de-duplicated.
var adapters = sync.OnceValue(func() []native.DeviceInfo {
	found, err := requestAdapters()
	if err != nil {
		return nil
	}
	return deviceInfos(found)
})

func requestAdapters() (found []adapterInfo, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			found = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", err)
	}
	defer instance.Release()

	for _, p := range preferences {
		adapter, reqErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
			PowerPreference: p.pref,
		})
		if reqErr != nil {
			continue
		}
		info, infoErr := adapter.GetInfo()
		adapter.Release()
		if infoErr != nil || info == nil {
			continue
		}
		found = append(found, adapterInfo{
			Vendor:       info.Vendor,
			Device:       info.Device,
			Description:  info.Description,
			Architecture: info.Architecture,
			Backend:      backendName(info.BackendType),
			Type:         adapterTypeName(info.AdapterType),
			VendorID:     info.VendorID,
			DeviceID:     info.DeviceID,
			Preference:   p.name,
		})
	}
	return found, nil
}

func backendName(t wgpu.BackendType) string {
	switch t {
	case wgpu.BackendTypeNull:
		return "Null"
	case wgpu.BackendTypeWebGPU:
		return "WebGPU"
	case wgpu.BackendTypeD3D11:
		return "D3D11"
	case wgpu.BackendTypeD3D12:
		return "D3D12"
	case wgpu.BackendTypeMetal:
		return "Metal"
	case wgpu.BackendTypeVulkan:
		return "Vulkan"
	case wgpu.BackendTypeOpenGL:
		return "OpenGL"
	case wgpu.BackendTypeOpenGLES:
		return "OpenGLES"
	default:
		return "Undefined"
	}
}

func adapterTypeName(t wgpu.AdapterType) string {
	switch t {
	case wgpu.AdapterTypeDiscreteGPU:
		return "DiscreteGPU"
	case wgpu.AdapterTypeIntegratedGPU:
		return "IntegratedGPU"
	case wgpu.AdapterTypeCPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

func powerPreference(info native.DeviceInfo) wgpu.PowerPreference {
	for _, p := range preferences {
		if info.Capabilities["preference"] == p.name {
			return p.pref
		}
	}
	return wgpu.PowerPreferenceHighPerformance
}
