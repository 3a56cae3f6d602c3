package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/camia/aviation/pkg/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aviation",
		Short: "Demand-driven evaluation of aviation fleet models",
		Long: `aviation evaluates named quantities of a systems model on demand.

Each quantity is produced by a transform whose parameters are other
quantities. Ask for an output, supply some inputs, and every missing
dependency is computed from the registered transforms.

Transforms come from:
  - the built-in aviation catalogue
  - Starlark modules (--starlark)
  - WebAssembly modules described by a manifest (--wasm)`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newEvaluateCommand())
	rootCmd.AddCommand(newTransformsCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newSweepCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newScenarioCommand())

	return rootCmd
}

// loadAppConfig loads the --config file and AVIATION__ environment.
func loadAppConfig() (*config.AppConfig, error) {
	return config.LoadAppConfig(configPath)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
