package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/born-ml/mathengine/engine"
	"github.com/born-ml/mathengine/internal/config"
	"github.com/born-ml/mathengine/internal/logutil"
	"github.com/born-ml/mathengine/native"
)

// runtimeFunc opens the native runtime for a configuration.
type runtimeFunc func(cfg config.Config, log zerolog.Logger) (native.Runtime, error)

func defaultRuntime(cfg config.Config, log zerolog.Logger) (native.Runtime, error) {
	return engine.System(&engine.SystemOptions{
		DefaultEngine:  cfg.DefaultEngine,
		VisibleDevices: cfg.VisibleDevices,
		DisableGPU:     cfg.DisableGPU,
		Logger:         log,
	})
}

// app holds the state shared by all commands.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg        config.Config
	log        zerolog.Logger
	newRuntime runtimeFunc
}

func newRootCommand(newRuntime runtimeFunc) *cobra.Command {
	a := &app{newRuntime: newRuntime}

	rootCmd := &cobra.Command{
		Use:   "born",
		Short: "Inspect and open born compute engines",
		Long: `born lists the compute devices visible to the born math engine and
opens CPU or GPU engines on them.

Configuration is read from an optional YAML file and BORN_* environment
variables. Run "born env" to list them.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides "+config.EnvLogLevel+")")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: console or json")

	rootCmd.AddCommand(newDevicesCommand(a))
	rootCmd.AddCommand(newInfoCommand(a))
	rootCmd.AddCommand(newEnvCommand(a))
	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func (a *app) setup(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logutil.New(logutil.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: stderr})
	return nil
}

// factory opens the runtime and creates a factory over it.
func (a *app) factory(opts ...engine.Option) (*engine.Factory, error) {
	rt, err := a.newRuntime(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	opts = append([]engine.Option{
		engine.WithLogger(a.log),
		engine.WithMemoryLimit(uint64(a.cfg.MemoryLimit)),
	}, opts...)
	return engine.NewFactory(rt, opts...), nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "born %s\n", version)
		},
	}
}
