package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/camia/aviation/pkg/config"
	"github.com/camia/aviation/pkg/stores"
)

var dbPath string

func newScenarioCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Manage stored scenarios",
		Long: `Save, inspect and run scenarios kept in the local SQLite store.

Stored scenarios hold inputs, the output to evaluate and optional sweep
axes. Results are never stored; running a scenario evaluates it afresh.`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "scenario database (overrides store.path)")

	cmd.AddCommand(newScenarioSaveCommand())
	cmd.AddCommand(newScenarioListCommand())
	cmd.AddCommand(newScenarioShowCommand())
	cmd.AddCommand(newScenarioRunCommand())
	cmd.AddCommand(newScenarioDeleteCommand())

	return cmd
}

// openStore opens the scenario store named by --db or the config.
func openStore(cmd *cobra.Command) (*stores.SQLiteStore, *config.AppConfig, error) {
	cfg, err := loadAppConfig()
	if err != nil {
		return nil, nil, err
	}
	path := cfg.Store.Path
	if dbPath != "" {
		path = dbPath
	}
	store, err := stores.Open(cmd.Context(), path)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func newScenarioSaveCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Save a scenario file to the store",
		Long: `Validate a scenario file and save it under its name, replacing any
stored scenario with the same name.`,
		Example: `  # Save a scenario
  aviation scenario save scenarios/baseline.yaml

  # Save it under another name
  aviation scenario save baseline.yaml --name baseline_2030`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario, err := config.LoadScenario(args[0])
			if err != nil {
				return err
			}
			if name != "" {
				scenario.Name = name
			}

			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.SaveScenario(cmd.Context(), scenario)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", rec.Name, rec.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "store under this name instead of the file's")
	return cmd
}

func newScenarioListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListScenarios(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), records)
			}
			for _, rec := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", rec.Name, rec.Output, rec.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newScenarioShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a stored scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.GetScenario(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var doc interface{}
			if err := json.Unmarshal(rec.Document, &doc); err != nil {
				return fmt.Errorf("stored scenario %s is corrupt: %w", rec.Name, err)
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
}

func newScenarioRunCommand() *cobra.Command {
	var (
		mf       modelFlags
		inputs   []string
		policies []string
	)

	cmd := &cobra.Command{
		Use:   "run <name> [output]",
		Short: "Evaluate a stored scenario",
		Example: `  # Evaluate the stored baseline
  aviation scenario run baseline

  # Evaluate another output with one input changed
  aviation scenario run baseline passengers_per_day --input days_per_year=360:day/year`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.GetScenario(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			scenario, err := rec.Scenario()
			if err != nil {
				return err
			}
			values, err := scenario.ModelInputs()
			if err != nil {
				return err
			}
			overrides, err := parseAssignments(inputs)
			if err != nil {
				return err
			}
			for name, value := range overrides {
				values[name] = value
			}

			output := scenario.Output
			if len(args) > 1 {
				output = args[1]
			}

			paths := append(append(append([]string{}, cfg.Engine.Policies...), scenario.Policies...), policies...)
			return evaluateInputs(cmd.Context(), cmd.OutOrStdout(), cfg, &mf, output, values, paths)
		},
	}

	mf.register(cmd)
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "input override as name=value[:unit] (repeatable)")
	cmd.Flags().StringArrayVar(&policies, "policy", nil, "rego policy file or directory (repeatable)")
	return cmd
}

func newScenarioDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteScenario(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
