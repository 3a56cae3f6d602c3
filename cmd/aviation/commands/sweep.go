package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/camia/aviation/pkg/aviation"
	"github.com/camia/aviation/pkg/config"
	"github.com/camia/aviation/pkg/sweep"
)

// sweepPointReport is the --json form of one sweep point.
type sweepPointReport struct {
	Index       int                    `json:"index"`
	Coordinates map[string]interface{} `json:"coordinates"`
	Value       interface{}            `json:"value,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

func newSweepCommand() *cobra.Command {
	var (
		mf              modelFlags
		scenarioPath    string
		inputs          []string
		concurrency     int
		maxPoints       int
		continueOnError bool
	)

	cmd := &cobra.Command{
		Use:   "sweep [output]",
		Short: "Evaluate an output over a grid of inputs",
		Long: `Evaluate an output at every point of the cartesian product of the
sweep axes. Each point starts from the base inputs with the point's
coordinates applied on top.

The base inputs and axes come from --scenario. Without a scenario the
baseline fleet inputs are swept over passengers per year, seats per
aircraft and daily flights per aircraft. The output defaults to the
scenario output, then to required_global_fleet.`,
		Example: `  # Sweep the default fleet grid
  aviation sweep

  # Sweep the axes of a scenario with 8 workers
  aviation sweep --scenario seats.yaml --concurrency 8

  # Keep going when a point fails
  aviation sweep -s seats.yaml --continue-on-error --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}

			output := ""
			if len(args) > 0 {
				output = args[0]
			}

			base := aviation.BaselineInputs()
			var axes []sweep.Axis
			if scenarioPath != "" {
				scenario, err := config.LoadScenario(scenarioPath)
				if err != nil {
					return err
				}
				if base, err = scenario.ModelInputs(); err != nil {
					return err
				}
				if axes, err = scenario.Axes(maxPoints); err != nil {
					return err
				}
				if output == "" {
					output = scenario.Output
				}
			}
			if len(axes) == 0 {
				if axes, err = aviation.FleetSweep(); err != nil {
					return err
				}
			}
			if output == "" {
				output = aviation.NameRequiredGlobalFleet
			}

			overrides, err := parseAssignments(inputs)
			if err != nil {
				return err
			}
			for name, value := range overrides {
				base[name] = value
			}

			model, err := mf.build(ctx, cfg)
			if err != nil {
				return err
			}
			defer model.Close(ctx)

			if concurrency == 0 {
				concurrency = cfg.Engine.SweepConcurrency
			}

			log.Debug().
				Str("output", output).
				Int("axes", len(axes)).
				Int("concurrency", concurrency).
				Msg("Running sweep")

			results, err := sweep.Run(ctx, model, base, axes, output, sweep.Options{
				Concurrency:     concurrency,
				ContinueOnError: continueOnError,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				reports := make([]sweepPointReport, len(results))
				for i, r := range results {
					reports[i] = sweepPointReport{Index: r.Index, Coordinates: r.Coordinates, Value: r.Value}
					if r.Err != nil {
						reports[i].Error = r.Err.Error()
					}
				}
				return printJSON(w, reports)
			}

			for _, r := range results {
				coords := make([]string, len(axes))
				for i, a := range axes {
					coords[i] = fmt.Sprintf("%s=%s", a.Name, formatValue(r.Coordinates[a.Name]))
				}
				value := formatValue(r.Value)
				if r.Err != nil {
					value = "error: " + r.Err.Error()
				}
				fmt.Fprintf(w, "%s  %s = %s\n", strings.Join(coords, " "), output, value)
			}

			if failed := sweep.Failed(results); len(failed) > 0 {
				log.Warn().Int("failed", len(failed)).Int("points", len(results)).Msg("Some sweep points failed")
			}
			return nil
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file with base inputs and sweep axes")
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "base input as name=value[:unit] (repeatable)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "points evaluated in parallel (default from config, then CPUs)")
	cmd.Flags().IntVar(&maxPoints, "max-points", sweep.DefaultMaxPoints, "largest grid the scenario may span")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "record failed points instead of aborting")

	return cmd
}
