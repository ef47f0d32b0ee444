package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tubescribe/tubescribe/internal/diagnostics"
	"github.com/tubescribe/tubescribe/internal/platform"
	"github.com/tubescribe/tubescribe/internal/version"
)

func newDoctorCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that external tools, the model, and the destination folder are ready",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runDoctor(cmd.OutOrStdout())
		},
	}

	bindModelFlags(cmd, app)
	cmd.Flags().StringVar(&app.destDir, "dest", "", "Destination folder to check")
	return cmd
}

func (a *appState) runDoctor(out io.Writer) error {
	rt := platform.CurrentRuntime()
	fmt.Fprintf(out, "tubescribe v%s on %s/%s\n\n", version.Resolve(), rt.OS, rt.Arch)

	ffmpegDir, err := platform.ResolveFFmpegDir()
	if err != nil {
		return err
	}
	modelDir, err := platform.ResolveModelDir(a.cfg.ModelDir)
	if err != nil {
		return err
	}

	checkFn := a.checkFn
	if checkFn == nil {
		checkFn = diagnostics.NewChecker().Run
	}

	report := checkFn(diagnostics.Inputs{
		Model:     a.cfg.Model,
		ModelDir:  modelDir,
		DestDir:   a.cfg.DestDir,
		FFmpegDir: ffmpegDir,
	})

	writeReport(out, report)

	if report.HasFailures {
		return fmt.Errorf("doctor found problems; fix the failed checks above")
	}
	return nil
}

func writeReport(out io.Writer, report diagnostics.Report) {
	for _, item := range report.Items {
		fmt.Fprintf(out, "%s %-12s %s\n", statusGlyph(item.Status), item.Name, item.Message)
		if item.Hint != "" {
			fmt.Fprintf(out, "  %-12s hint: %s\n", "", item.Hint)
		}
	}
}

func statusGlyph(status diagnostics.Status) string {
	switch status {
	case diagnostics.StatusPass:
		return "[ok]"
	case diagnostics.StatusWarn:
		return "[--]"
	default:
		return "[!!]"
	}
}
