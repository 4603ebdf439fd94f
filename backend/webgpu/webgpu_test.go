package webgpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mathengine/backend/webgpu"
	"github.com/born-ml/mathengine/engine"
)

func TestDevicesMatchAvailability(t *testing.T) {
	f := engine.NewFactory(webgpu.New())
	devices := f.Devices()
	assert.Equal(t, webgpu.IsAvailable(), len(devices) > 0)

	_, err := f.NewGPU(len(devices))
	require.ErrorIs(t, err, engine.ErrInvalidArgument)
}
