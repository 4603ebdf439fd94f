// Package config loads the engine configuration.
//
// Values are resolved in order: built-in defaults, an optional YAML file,
// then BORN_* environment variables. The result is validated before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the engine configuration.
type Config struct {
	// NumThreads is the CPU worker count. 0 selects one per logical CPU.
	NumThreads int `yaml:"num_threads" validate:"gte=0"`

	// MemoryLimit caps the memory of each engine. 0 is unlimited.
	MemoryLimit ByteSize `yaml:"memory_limit"`

	DefaultEngine  string `yaml:"default_engine" validate:"oneof=cpu gpu auto"`
	VisibleDevices []int  `yaml:"visible_devices" validate:"dive,gte=0"`
	DisableGPU     bool   `yaml:"disable_gpu"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" validate:"required"`
	Listen    string `yaml:"listen" validate:"required,hostname_port"`
}

// ByteSize is a size in bytes. In YAML and the environment it accepts plain
// numbers or human readable sizes such as "512MiB" or "4 GB".
type ByteSize uint64

// ParseByteSize parses s as a ByteSize.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return ByteSize(n), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	n, err := ParseByteSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: memory size %q: %w", value.Line, value.Value, err)
	}
	*b = n
	return nil
}

// String formats the size with IEC units.
func (b ByteSize) String() string {
	if b == 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(b))
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DefaultEngine: "cpu",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Namespace: "born",
			Listen:    "127.0.0.1:9464",
		},
	}
}

// Load reads the configuration. path may be empty to skip the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// ParseDevices parses a comma separated list of device indices.
func ParseDevices(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("device list %q: %w", s, err)
		}
		out = append(out, n)
	}
	return out, nil
}
