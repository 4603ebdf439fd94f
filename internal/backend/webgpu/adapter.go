package webgpu

import (
	"fmt"

	"github.com/born-ml/mathengine/native"
)

// adapterInfo is the platform independent view of a WebGPU adapter.
type adapterInfo struct {
	Vendor       string
	Device       string
	Description  string
	Architecture string
	Backend      string
	Type         string
	VendorID     uint32
	DeviceID     uint32

	// Preference is the power preference the adapter was requested with.
	Preference string
}

// deviceInfos converts adapters into device infos, dropping adapters that
// report the same vendor and device ID as an earlier one, and numbering the
// survivors densely.
func deviceInfos(adapters []adapterInfo) []native.DeviceInfo {
	type key struct{ vendor, device uint32 }
	seen := make(map[key]struct{})

	out := make([]native.DeviceInfo, 0, len(adapters))
	for _, a := range adapters {
		k := key{a.VendorID, a.DeviceID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		name := a.Device
		if name == "" {
			name = a.Description
		}
		out = append(out, native.DeviceInfo{
			Index:       len(out),
			Name:        name,
			Type:        native.DeviceWebGPU,
			Vendor:      a.Vendor,
			Description: a.Description,
			Integrated:  a.Type == "IntegratedGPU",
			Capabilities: map[string]string{
				"architecture": a.Architecture,
				"backend":      a.Backend,
				"adapter_type": a.Type,
				"vendor_id":    fmt.Sprintf("0x%04X", a.VendorID),
				"device_id":    fmt.Sprintf("0x%04X", a.DeviceID),
				"preference":   a.Preference,
			},
		})
	}
	return out
}
