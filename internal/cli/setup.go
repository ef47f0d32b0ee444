package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tubescribe/tubescribe/internal/download"
	"github.com/tubescribe/tubescribe/internal/fetch"
	"github.com/tubescribe/tubescribe/internal/ffmpeg"
	"github.com/tubescribe/tubescribe/internal/platform"
	"github.com/tubescribe/tubescribe/internal/whisper"
)

func newSetupCmd(app *appState) *cobra.Command {
	var modelOnly bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Download the whisper model and prepare ffmpeg and yt-dlp",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			modelDir, err := app.modelStorageDir()
			if err != nil {
				return err
			}

			resolved, err := whisper.ResolveModel(app.cfg.Model, modelDir)
			if err != nil {
				return err
			}
			if resolved.IsCustomPath {
				return fmt.Errorf("setup expects a named model; got custom path %s", resolved.Path)
			}

			if !resolved.NeedsDownload && resolved.SHA256 != "" {
				if err := download.VerifyFileChecksum(resolved.Path, resolved.SHA256); err != nil {
					app.log().Warn("model checksum verification failed; downloading fresh copy", zap.String("model", resolved.Name), zap.Error(err))
					resolved.NeedsDownload = true
				}
			}

			if resolved.NeedsDownload {
				app.log().Info("downloading model", zap.String("model", resolved.Name), zap.String("path", resolved.Path))
				if err := download.File(ctx, download.Options{
					URL:            resolved.URL,
					Destination:    resolved.Path,
					Description:    "downloading " + resolved.Name,
					ExpectedSHA256: resolved.SHA256,
					NoProgress:     app.noProgress,
					Logger:         app.log(),
				}); err != nil {
					return fmt.Errorf("download model %s: %w", resolved.Name, err)
				}
				fmt.Fprintf(out, "Model %s installed at %s\n", resolved.Name, resolved.Path)
			} else {
				app.log().Info("model already present", zap.String("model", resolved.Name), zap.String("path", resolved.Path))
				fmt.Fprintf(out, "Model %s already present at %s\n", resolved.Name, resolved.Path)
			}

			if modelOnly {
				return nil
			}

			ffmpegDir, err := platform.ResolveFFmpegDir()
			if err != nil {
				return err
			}
			tool := ffmpeg.NewTool(ffmpegDir, app.log())
			tool.NoProgress = app.noProgress
			loc, err := tool.Ensure(ctx)
			if err != nil {
				return fmt.Errorf("prepare ffmpeg: %w", err)
			}
			fmt.Fprintf(out, "ffmpeg ready in %s\n", loc.Dir)

			fetcher := fetch.New("", loc.Dir, app.log())
			if err := fetcher.EnsureInstalled(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "yt-dlp ready")

			fmt.Fprintln(out, "Setup complete.")
			return nil
		},
	}

	bindModelFlags(cmd, app)
	cmd.Flags().BoolVar(&modelOnly, "model-only", false, "Only download the model, skip ffmpeg and yt-dlp")
	return cmd
}
