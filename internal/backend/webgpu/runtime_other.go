//go:build !windows

package webgpu

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/born-ml/mathengine/native"
)

func adapters() []native.DeviceInfo {
	return nil
}

func open(info native.DeviceInfo, _ uint64, _ zerolog.Logger) (native.Handle, error) {
	return nil, fmt.Errorf("webgpu: %s: %w", info.Name, native.ErrUnavailable)
}
