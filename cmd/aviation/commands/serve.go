package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/camia/aviation/pkg/api"
	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/policy"
	"github.com/camia/aviation/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	var (
		mf        modelFlags
		addr      string
		policies  []string
		maxPoints int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the model over HTTP",
		Long: `Serve the model as a JSON API.

Endpoints:
  - GET  /healthz
  - GET  /metrics (when metrics are enabled)
  - GET  /v1/transforms, /v1/transforms/{name}, /v1/transforms/{name}/requirements
  - GET  /v1/graph?format=dot|json
  - GET  /v1/policies
  - POST /v1/evaluate
  - POST /v1/sweep

Policy files are watched and reloaded while the server runs. Tracing,
metrics and logging follow the telemetry section of the config.`,
		Example: `  # Serve the built-in catalogue on the configured address
  aviation serve

  # Serve extra transforms with policies on another port
  aviation serve --addr 0.0.0.0:9000 --starlark extra.star --policy ./policies`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tel.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Failed to shut down telemetry")
				}
			}()
			ctx = tel.WithContext(ctx)
			logger := tel.Logger.Zerolog()

			model, err := mf.build(ctx, cfg, engine.WithObserver(tel.Observer()))
			if err != nil {
				return err
			}
			defer model.Close(context.Background())

			paths := append(append([]string{}, cfg.Engine.Policies...), policies...)
			pe, err := policy.NewEngine(logger)
			if err != nil {
				return err
			}
			if err := pe.LoadPolicies(ctx, paths); err != nil {
				return err
			}
			if len(paths) > 0 {
				loader := policy.NewLoader(logger)
				err := loader.Watch(ctx, paths, func(loaded []policy.Policy) error {
					return pe.ReplacePolicies(ctx, loaded)
				})
				if err != nil {
					return err
				}
				defer func() {
					if err := loader.StopWatching(); err != nil {
						log.Debug().Err(err).Msg("Policy watcher already stopped")
					}
				}()
			}

			server := api.NewServer(model.SystemsModel,
				api.WithPolicies(pe),
				api.WithMetrics(tel.Metrics),
				api.WithLogger(logger),
				api.WithSweepConcurrency(cfg.Engine.SweepConcurrency),
				api.WithMaxSweepPoints(maxPoints),
			)
			return server.ListenAndServe(ctx, cfg.Server)
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringArrayVar(&policies, "policy", nil, "rego policy file or directory (repeatable)")
	cmd.Flags().IntVar(&maxPoints, "max-sweep-points", api.DefaultMaxSweepPoints, "largest sweep grid a request may ask for")

	return cmd
}
