// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mathengine/backend/cpu"
	"github.com/born-ml/mathengine/engine"
)

func TestFactoryOverCPURuntime(t *testing.T) {
	f := engine.NewFactory(cpu.New())
	assert.Empty(t, f.Devices())

	e, err := f.NewCPU(2)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.CleanUp(context.Background()))
	assert.Equal(t, 2, e.ThreadCount())
}

func TestAdaptOpenedBackend(t *testing.T) {
	b, err := cpu.Open(1, 1<<20)
	require.NoError(t, err)

	e, err := engine.NewFactory(cpu.New()).Adapt(b)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.True(t, b.Closed())
}
