package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// transformReport is the --json form of one transform.
type transformReport struct {
	Name        string   `json:"name"`
	Parameters  []string `json:"parameters"`
	Signature   string   `json:"signature"`
	Description string   `json:"description,omitempty"`
	Strict      bool     `json:"strict"`
}

func newTransformsCommand() *cobra.Command {
	var mf modelFlags

	cmd := &cobra.Command{
		Use:   "transforms",
		Short: "List the transforms of the model",
		Long: `List every transform registered in the model, sorted by name,
with its parameters and unit annotations.`,
		Example: `  # List the built-in catalogue
  aviation transforms

  # Include transforms from a starlark module
  aviation transforms --starlark extra.star --json`,
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

			transforms := model.Transforms()
			if jsonOutput {
				reports := make([]transformReport, 0, len(transforms))
				for _, t := range transforms {
					reports = append(reports, transformReport{
						Name:        t.Name(),
						Parameters:  t.Parameters(),
						Signature:   t.Signature(),
						Description: t.Description(),
						Strict:      t.IsStrict(),
					})
				}
				return printJSON(cmd.OutOrStdout(), reports)
			}

			w := cmd.OutOrStdout()
			for _, t := range transforms {
				fmt.Fprintln(w, t.Signature())
				if verbose && t.Description() != "" {
					fmt.Fprintf(w, "    %s\n", t.Description())
				}
			}
			return nil
		},
	}

	mf.register(cmd)
	return cmd
}
