package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for key := range Default().AsMap() {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "born.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "cpu", cfg.DefaultEngine)
	assert.Nil(t, cfg.VisibleDevices)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
num_threads: 6
memory_limit: 512MiB
default_engine: auto
visible_devices: [1, 0]
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.NumThreads)
	assert.Equal(t, ByteSize(512<<20), cfg.MemoryLimit)
	assert.Equal(t, "auto", cfg.DefaultEngine)
	assert.Equal(t, []int{1, 0}, cfg.VisibleDevices)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format, "unset keys keep defaults")
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "num_threads: 6\ndefault_engine: gpu\n")
	t.Setenv(EnvNumThreads, "2")
	t.Setenv(EnvMemoryLimit, "1GiB")
	t.Setenv(EnvVisibleDevices, "0, 2")
	t.Setenv(EnvDisableGPU, "true")
	t.Setenv(EnvLogFormat, "JSON")
	t.Setenv(EnvListen, `":9000"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.NumThreads)
	assert.Equal(t, ByteSize(1<<30), cfg.MemoryLimit)
	assert.Equal(t, "gpu", cfg.DefaultEngine)
	assert.Equal(t, []int{0, 2}, cfg.VisibleDevices)
	assert.True(t, cfg.DisableGPU)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9000", cfg.Metrics.Listen)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "bad thread count", env: map[string]string{EnvNumThreads: "many"}},
		{name: "negative thread count", env: map[string]string{EnvNumThreads: "-2"}},
		{name: "bad memory", env: map[string]string{EnvMemoryLimit: "lots"}},
		{name: "bad policy", env: map[string]string{EnvDefaultEngine: "tpu"}},
		{name: "bad devices", env: map[string]string{EnvVisibleDevices: "0,x"}},
		{name: "negative device", env: map[string]string{EnvVisibleDevices: "-1"}},
		{name: "bad bool", env: map[string]string{EnvDisableGPU: "maybe"}},
		{name: "bad level", env: map[string]string{EnvLogLevel: "loud"}},
		{name: "bad listen", env: map[string]string{EnvListen: "nowhere"}},
		{name: "bad yaml", file: "num_threads: [\n"},
		{name: "bad yaml size", file: "memory_limit: huge\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestByteSize(t *testing.T) {
	n, err := ParseByteSize("4 GB")
	require.NoError(t, err)
	assert.Equal(t, ByteSize(4_000_000_000), n)

	n, err = ParseByteSize("1048576")
	require.NoError(t, err)
	assert.Equal(t, "1.0 MiB", n.String())

	assert.Equal(t, "unlimited", ByteSize(0).String())
}

func TestAsMap(t *testing.T) {
	cfg := Default()
	cfg.VisibleDevices = []int{0, 3}

	m := cfg.AsMap()
	assert.Len(t, m, 9)
	assert.Equal(t, "0,3", m[EnvVisibleDevices].Value)
	assert.Equal(t, "all", Default().AsMap()[EnvVisibleDevices].Value)
	for key, v := range m {
		assert.Equal(t, key, v.Name)
		assert.NotEmpty(t, v.Description)
	}
}
