package cli

import (
	"github.com/spf13/cobra"
)

func newGetCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <url> [url...]",
		Short: "Download audio without transcribing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app.cfg.Transcribe = false
			return app.runFetchFlow(cmd.Context(), args, fetchFlowOptions{})
		},
	}

	bindFetchFlags(cmd, app)
	bindBatchFlag(cmd, app)
	return cmd
}
