package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables.
const (
	EnvNumThreads       = "BORN_NUM_THREADS"
	EnvMemoryLimit      = "BORN_MEMORY_LIMIT"
	EnvDefaultEngine    = "BORN_DEFAULT_ENGINE"
	EnvVisibleDevices   = "BORN_VISIBLE_DEVICES"
	EnvDisableGPU       = "BORN_DISABLE_GPU"
	EnvLogLevel         = "BORN_LOG_LEVEL"
	EnvLogFormat        = "BORN_LOG_FORMAT"
	EnvMetricsNamespace = "BORN_METRICS_NAMESPACE"
	EnvListen           = "BORN_LISTEN"
)

// Var returns the trimmed value of an environment variable.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

func (c *Config) applyEnv() error {
	if s := Var(EnvNumThreads); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return envError(EnvNumThreads, s, err)
		}
		c.NumThreads = n
	}
	if s := Var(EnvMemoryLimit); s != "" {
		n, err := ParseByteSize(s)
		if err != nil {
			return envError(EnvMemoryLimit, s, err)
		}
		c.MemoryLimit = n
	}
	if s := Var(EnvDefaultEngine); s != "" {
		c.DefaultEngine = strings.ToLower(s)
	}
	if s := Var(EnvVisibleDevices); s != "" {
		devices, err := ParseDevices(s)
		if err != nil {
			return envError(EnvVisibleDevices, s, err)
		}
		c.VisibleDevices = devices
	}
	if s := Var(EnvDisableGPU); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return envError(EnvDisableGPU, s, err)
		}
		c.DisableGPU = b
	}
	if s := Var(EnvLogLevel); s != "" {
		c.Log.Level = strings.ToLower(s)
	}
	if s := Var(EnvLogFormat); s != "" {
		c.Log.Format = strings.ToLower(s)
	}
	if s := Var(EnvMetricsNamespace); s != "" {
		c.Metrics.Namespace = s
	}
	if s := Var(EnvListen); s != "" {
		c.Metrics.Listen = s
	}
	return nil
}

func envError(key, value string, err error) error {
	return fmt.Errorf("config: %s=%q: %w", key, value, err)
}

// EnvVar describes one environment variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap lists every environment variable with the effective value from c.
func (c Config) AsMap() map[string]EnvVar {
	devices := "all"
	if c.VisibleDevices != nil {
		parts := make([]string, len(c.VisibleDevices))
		for i, d := range c.VisibleDevices {
			parts[i] = strconv.Itoa(d)
		}
		devices = strings.Join(parts, ",")
	}

	return map[string]EnvVar{
		EnvNumThreads:       {EnvNumThreads, c.NumThreads, "CPU worker threads, 0 for one per logical CPU"},
		EnvMemoryLimit:      {EnvMemoryLimit, c.MemoryLimit, "Memory limit per engine (e.g. 4GiB), 0 for unlimited"},
		EnvDefaultEngine:    {EnvDefaultEngine, c.DefaultEngine, "Engine opened by default: cpu, gpu or auto"},
		EnvVisibleDevices:   {EnvVisibleDevices, devices, "Comma separated GPU indices to expose"},
		EnvDisableGPU:       {EnvDisableGPU, c.DisableGPU, "Hide all GPUs"},
		EnvLogLevel:         {EnvLogLevel, c.Log.Level, "Log level: trace, debug, info, warn or error"},
		EnvLogFormat:        {EnvLogFormat, c.Log.Format, "Log format: console or json"},
		EnvMetricsNamespace: {EnvMetricsNamespace, c.Metrics.Namespace, "Prometheus metric namespace"},
		EnvListen:           {EnvListen, c.Metrics.Listen, "Address served by born serve"},
	}
}
