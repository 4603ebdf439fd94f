// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package native

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceInfoJSON(t *testing.T) {
	info := DeviceInfo{
		Index:        1,
		Name:         "Radeon",
		Type:         DeviceVulkan,
		TotalMemory:  16 << 30,
		Integrated:   true,
		Capabilities: map[string]string{"backend": "Vulkan"},
	}

	data, err := json.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"Vulkan"`)

	var got DeviceInfo
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, info, got)
}

func TestDeviceTypeUnmarshal(t *testing.T) {
	var d DeviceType
	require.NoError(t, d.UnmarshalText([]byte("webgpu")))
	assert.Equal(t, DeviceWebGPU, d)
	assert.Error(t, d.UnmarshalText([]byte("opencl")))
}

func TestDeviceInfoClone(t *testing.T) {
	info := DeviceInfo{Name: "A", Capabilities: map[string]string{"k": "v"}}
	c := info.Clone()
	c.Capabilities["k"] = "changed"
	assert.Equal(t, "v", info.Capabilities["k"])

	assert.Equal(t, "gpu0 A (Undefined)", info.String())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "cpu", KindCPU.String())
	assert.Equal(t, "gpu", KindGPU.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}
