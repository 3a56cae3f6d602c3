package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/camia/aviation/pkg/config"
	"github.com/camia/aviation/pkg/policy"
)

// watchDelay debounces bursts of file events in --watch mode.
const watchDelay = 300 * time.Millisecond

type evaluateOptions struct {
	model    modelFlags
	scenario string
	inputs   []string
	policies []string
	watch    bool
}

// evaluationReport is the --json form of an evaluation.
type evaluationReport struct {
	Output      string                 `json:"output"`
	Value       interface{}            `json:"value"`
	Derived     map[string]interface{} `json:"derived,omitempty"`
	Invocations int                    `json:"invocations"`
	DurationMS  float64                `json:"duration_ms"`
	Warnings    []policy.Violation     `json:"warnings,omitempty"`
}

func newEvaluateCommand() *cobra.Command {
	opts := &evaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate [output]",
		Short: "Evaluate a quantity of the model",
		Long: `Evaluate a named quantity, computing every missing dependency.

Inputs come from a scenario file (YAML, JSON or CUE) and from --input
flags, which take precedence. Values are plain numbers or carry a unit
after a colon.

Before evaluating, the inputs are checked against the built-in policies,
the policies listed in the config and scenario, and any --policy file.
Blocking violations abort the evaluation; warnings are logged.`,
		Example: `  # Evaluate the required global fleet from a scenario
  aviation evaluate --scenario scenarios/baseline.yaml

  # Evaluate with plain numbers
  aviation evaluate passengers_per_day --input passengers_per_year=5e9 --input days_per_year=365

  # Override one scenario input, with units
  aviation evaluate -s baseline.yaml --input seats_per_aircraft=180:passenger/aircraft

  # Re-evaluate whenever the scenario or a starlark module changes
  aviation evaluate -s baseline.yaml --starlark extra.star --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := ""
			if len(args) > 0 {
				output = args[0]
			}

			if err := runEvaluate(cmd.Context(), cmd.OutOrStdout(), opts, output); err != nil {
				if !opts.watch {
					return err
				}
				log.Error().Err(err).Msg("Evaluation failed")
			}
			if !opts.watch {
				return nil
			}
			return watchEvaluate(cmd.Context(), cmd.OutOrStdout(), opts, output)
		},
	}

	opts.model.register(cmd)
	cmd.Flags().StringVarP(&opts.scenario, "scenario", "s", "", "scenario file")
	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "input as name=value[:unit] (repeatable)")
	cmd.Flags().StringArrayVar(&opts.policies, "policy", nil, "rego policy file or directory (repeatable)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-evaluate when input files change")

	return cmd
}

func runEvaluate(ctx context.Context, w io.Writer, opts *evaluateOptions, output string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	inputs := make(map[string]interface{})
	policyPaths := append([]string{}, cfg.Engine.Policies...)
	if opts.scenario != "" {
		scenario, err := config.LoadScenario(opts.scenario)
		if err != nil {
			return err
		}
		if inputs, err = scenario.ModelInputs(); err != nil {
			return err
		}
		if output == "" {
			output = scenario.Output
		}
		policyPaths = append(policyPaths, scenarioPaths(opts.scenario, scenario.Policies)...)
	}
	overrides, err := parseAssignments(opts.inputs)
	if err != nil {
		return err
	}
	for name, value := range overrides {
		inputs[name] = value
	}
	policyPaths = append(policyPaths, opts.policies...)

	if output == "" {
		return errors.New("no output given: pass it as an argument or set it in the scenario")
	}

	return evaluateInputs(ctx, w, cfg, &opts.model, output, inputs, policyPaths)
}

// evaluateInputs checks inputs against the policies at policyPaths, then
// evaluates output and prints the result.
func evaluateInputs(ctx context.Context, w io.Writer, cfg *config.AppConfig, mf *modelFlags, output string, inputs map[string]interface{}, policyPaths []string) error {
	result, err := checkPolicies(ctx, policyPaths, output, inputs)
	if err != nil {
		return err
	}

	model, err := mf.build(ctx, cfg)
	if err != nil {
		return err
	}
	defer model.Close(ctx)

	ev, err := model.EvaluateContext(ctx, inputs, output)
	if err != nil {
		return err
	}

	if jsonOutput {
		report := evaluationReport{
			Output:      ev.Output,
			Value:       ev.Value,
			Invocations: ev.Invocations,
			DurationMS:  float64(ev.Duration) / float64(time.Millisecond),
			Warnings:    result.Warnings,
		}
		if len(ev.Derived) > 0 {
			report.Derived = make(map[string]interface{}, len(ev.Derived))
			for _, name := range ev.Derived {
				report.Derived[name] = ev.Inputs[name]
			}
		}
		return printJSON(w, report)
	}

	fmt.Fprintf(w, "%s = %s\n", ev.Output, formatValue(ev.Value))
	if verbose {
		for _, name := range ev.Derived {
			fmt.Fprintf(w, "  %s = %s\n", name, formatValue(ev.Inputs[name]))
		}
		fmt.Fprintf(w, "  (%d invocations in %s)\n", ev.Invocations, ev.Duration)
	}
	return nil
}

// checkPolicies runs the built-in policies and those at paths against the
// inputs. Warnings are logged; blocking violations become an error.
func checkPolicies(ctx context.Context, paths []string, output string, inputs map[string]interface{}) (*policy.Result, error) {
	policies, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, err
	}
	if err := policies.LoadPolicies(ctx, paths); err != nil {
		return nil, err
	}

	result, err := policies.Check(ctx, output, inputs)
	if err != nil {
		return nil, err
	}
	for _, v := range result.Warnings {
		log.Warn().Str("policy", v.Policy).Str("input", v.Input).Msg(v.Message)
	}
	if !result.Allowed {
		for _, v := range result.Violations {
			log.Error().Str("policy", v.Policy).Str("input", v.Input).Msg(v.Message)
		}
		first := result.Violations[0]
		return nil, fmt.Errorf("inputs rejected by policy %s: %s (%d violations)", first.Policy, first.Message, len(result.Violations))
	}
	return result, nil
}

// scenarioPaths resolves paths named in a scenario relative to its file.
func scenarioPaths(scenarioFile string, paths []string) []string {
	dir := filepath.Dir(scenarioFile)
	resolved := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			resolved[i] = p
		} else {
			resolved[i] = filepath.Join(dir, p)
		}
	}
	return resolved
}

// watchEvaluate re-runs the evaluation whenever the scenario, a starlark
// module, a wasm manifest or a policy file changes, until ctx is cancelled.
func watchEvaluate(ctx context.Context, w io.Writer, opts *evaluateOptions, output string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	files := make(map[string]bool)
	var watched []string
	if opts.scenario != "" {
		watched = append(watched, opts.scenario)
	}
	watched = append(watched, opts.model.starlark...)
	watched = append(watched, opts.model.wasm...)
	watched = append(watched, opts.policies...)
	if len(watched) == 0 {
		return errors.New("--watch needs at least one file to watch")
	}

	// Editors often replace files, so watch their directories. A watched
	// directory (of policies) matches every file directly inside it.
	dirs := make(map[string]bool)
	whole := make(map[string]bool)
	for _, f := range watched {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		dir := filepath.Dir(abs)
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			dir = abs
			whole[abs] = true
		} else {
			files[abs] = true
		}
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	log.Info().Strs("files", watched).Msg("Watching for changes")

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			if !files[name] && !whole[filepath.Dir(name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDelay)
			} else {
				timer.Reset(watchDelay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			log.Info().Msg("Change detected, re-evaluating")
			if err := runEvaluate(ctx, w, opts, output); err != nil {
				log.Error().Err(err).Msg("Evaluation failed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}
