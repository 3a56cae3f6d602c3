package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/camia/aviation/pkg/engine"
)

func newGraphCommand() *cobra.Command {
	var (
		mf           modelFlags
		format       string
		requirements string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the dependency graph of the model",
		Long: `Show the static dependency graph implied by transform parameters.

Formats:
  - dot: Graphviz source clustered by level
  - levels: one line per topological level
  - json: nodes, edges, levels and cycles

With --requirements, print the free inputs an output needs instead.
Static cycles are reported but only fail evaluation when no input
breaks them.`,
		Example: `  # Render the graph with Graphviz
  aviation graph | dot -Tsvg > model.svg

  # Print topological levels
  aviation graph --format levels

  # List the inputs the fleet size needs
  aviation graph --requirements required_global_fleet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			model, err := mf.build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer model.Close(cmd.Context())

			graph := engine.BuildGraph(model.SystemsModel)
			w := cmd.OutOrStdout()

			if requirements != "" {
				names, err := graph.Requirements(requirements)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(w, names)
				}
				for _, name := range names {
					fmt.Fprintln(w, name)
				}
				return nil
			}

			if jsonOutput {
				format = "json"
			}
			switch format {
			case "dot":
				fmt.Fprint(w, graph.ToDOT())
			case "json":
				return printJSON(w, graph)
			case "levels":
				for i, level := range graph.Levels {
					fmt.Fprintf(w, "%d: %s\n", i, strings.Join(level, " "))
				}
				for _, cycle := range graph.Cycles {
					fmt.Fprintf(w, "cycle: %s\n", strings.Join(cycle, " -> "))
				}
			default:
				return fmt.Errorf("unknown format %q: want dot, levels or json", format)
			}
			return nil
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "dot", "output format (dot, levels, json)")
	cmd.Flags().StringVar(&requirements, "requirements", "", "print the free inputs this output needs")

	return cmd
}
