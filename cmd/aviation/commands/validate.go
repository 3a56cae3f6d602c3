package commands

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/camia/aviation/pkg/config"
	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/policy"
)

// validationReport is the --json form of a validate run.
type validationReport struct {
	Files    []fileReport `json:"files"`
	Cycles   [][]string   `json:"cycles,omitempty"`
	Failures int          `json:"failures"`
}

type fileReport struct {
	Path     string   `json:"path"`
	Kind     string   `json:"kind"`
	Error    string   `json:"error,omitempty"`
	Missing  []string `json:"missing,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func newValidateCommand() *cobra.Command {
	var (
		mf      modelFlags
		acyclic bool
	)

	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate scenarios, policies and starlark modules",
		Long: `Validate model files without evaluating anything.

This command checks:
  - Scenario schema conformance (YAML, JSON, CUE)
  - That every scenario output can be resolved from its inputs
  - Scenario inputs against the built-in and referenced policies
  - Rego policy compilation
  - Starlark module loading
  - Static cycles in the model graph (errors with --acyclic)`,
		Example: `  # Validate everything under ./scenarios
  aviation validate ./scenarios

  # Validate a scenario against a model extended with starlark
  aviation validate --starlark extra.star baseline.yaml

  # Fail on static cycles
  aviation validate --acyclic`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}

			model, err := mf.build(ctx, cfg)
			if err != nil {
				return err
			}
			defer model.Close(ctx)
			graph := engine.BuildGraph(model.SystemsModel)

			files, err := collectFiles(args)
			if err != nil {
				return err
			}

			report := validationReport{Cycles: graph.Cycles}
			for _, path := range files {
				fr := validateFile(ctx, cfg, graph, path)
				if fr.Error != "" {
					report.Failures++
				}
				report.Files = append(report.Files, fr)
			}
			if acyclic && len(graph.Cycles) > 0 {
				report.Failures++
			}

			if jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				printValidation(cmd.OutOrStdout(), report)
			}

			if report.Failures > 0 {
				return fmt.Errorf("validation failed: %d problems", report.Failures)
			}
			return nil
		},
	}

	mf.register(cmd)
	cmd.Flags().BoolVar(&acyclic, "acyclic", false, "treat static cycles in the model graph as errors")

	return cmd
}

// collectFiles expands directories into the files validate understands.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && fileKind(p) != "" {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func fileKind(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".cue":
		return "scenario"
	case ".rego":
		return "policy"
	case ".star":
		return "starlark"
	default:
		return ""
	}
}

func validateFile(ctx context.Context, cfg *config.AppConfig, graph *engine.Graph, path string) fileReport {
	fr := fileReport{Path: path, Kind: fileKind(path)}
	fail := func(err error) fileReport {
		fr.Error = err.Error()
		log.Debug().Err(err).Str("path", path).Msg("Validation failed")
		return fr
	}

	switch fr.Kind {
	case "policy":
		policies, err := policy.NewEngine(log.Logger)
		if err != nil {
			return fail(err)
		}
		if err := policies.LoadPolicies(ctx, []string{path}); err != nil {
			return fail(err)
		}

	case "starlark":
		if _, err := config.NewStarlarkLoader(cfg.Engine.StarlarkMaxSteps, log.Logger).LoadFile(ctx, path); err != nil {
			return fail(err)
		}

	case "scenario":
		scenario, err := config.LoadScenario(path)
		if err != nil {
			return fail(err)
		}
		inputs, err := scenario.ModelInputs()
		if err != nil {
			return fail(err)
		}
		missing, err := graph.Missing(scenario.Output, inputs)
		if err != nil {
			return fail(err)
		}
		if len(missing) > 0 {
			fr.Missing = missing
			return fail(fmt.Errorf("missing inputs for %s: %s", scenario.Output, strings.Join(missing, ", ")))
		}

		paths := append(append([]string{}, cfg.Engine.Policies...), scenarioPaths(path, scenario.Policies)...)
		policies, err := policy.NewEngine(log.Logger)
		if err != nil {
			return fail(err)
		}
		if err := policies.LoadPolicies(ctx, paths); err != nil {
			return fail(err)
		}
		result, err := policies.Check(ctx, scenario.Output, inputs)
		if err != nil {
			return fail(err)
		}
		for _, v := range result.Warnings {
			fr.Warnings = append(fr.Warnings, fmt.Sprintf("%s: %s", v.Policy, v.Message))
		}
		if !result.Allowed {
			v := result.Violations[0]
			return fail(fmt.Errorf("rejected by policy %s: %s", v.Policy, v.Message))
		}

	default:
		return fail(fmt.Errorf("unrecognised file type"))
	}

	return fr
}

func printValidation(w io.Writer, report validationReport) {
	for _, f := range report.Files {
		if f.Error != "" {
			fmt.Fprintf(w, "FAIL  %s (%s): %s\n", f.Path, f.Kind, f.Error)
		} else {
			fmt.Fprintf(w, "ok    %s (%s)\n", f.Path, f.Kind)
		}
		for _, warning := range f.Warnings {
			fmt.Fprintf(w, "      warning: %s\n", warning)
		}
	}
	for _, cycle := range report.Cycles {
		fmt.Fprintf(w, "cycle %s\n", strings.Join(cycle, " -> "))
	}
}
