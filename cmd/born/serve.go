package main

import (
	"github.com/spf13/cobra"

	"github.com/born-ml/mathengine/engine"
	"github.com/born-ml/mathengine/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Open the default engine and serve its telemetry over HTTP",
		Long: `Open the default engine and serve:

  /healthz      liveness
  /v1/devices   visible GPUs
  /v1/engine    the served engine and its memory
  /metrics      prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = a.cfg.Metrics.Listen
			}

			metrics := engine.NewMetrics(a.cfg.Metrics.Namespace)
			f, err := a.factory(engine.WithMetrics(metrics))
			if err != nil {
				return err
			}
			e, err := f.Default()
			if err != nil {
				return err
			}
			defer e.Close()

			a.log.Info().Stringer("engine", e).Msg("serving engine")
			return server.New(listen, f, e, metrics.Registry(), a.log).Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from BORN_LISTEN)")
	return cmd
}
