package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tubescribe/tubescribe/internal/whisper"
)

func newModelsCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available whisper models and their download state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			modelDir, err := app.modelStorageDir()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tSTATUS")
			for _, name := range whisper.ModelNames() {
				model, ok := whisper.LookupModel(name)
				if !ok {
					continue
				}

				status := "not downloaded"
				if resolved, resolveErr := whisper.ResolveModel(name, modelDir); resolveErr == nil && !resolved.NeedsDownload {
					status = "downloaded"
				}

				display := model.Name
				if model.Name == whisper.DefaultModel {
					display += " (default)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", display, model.SizeLabel, status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&app.modelDir, "model-dir", "", "Directory where models are stored")
	return cmd
}
