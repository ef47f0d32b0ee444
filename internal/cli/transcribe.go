package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tubescribe/tubescribe/internal/audio"
	"github.com/tubescribe/tubescribe/internal/clipboard"
	"github.com/tubescribe/tubescribe/internal/ffmpeg"
	"github.com/tubescribe/tubescribe/internal/pipeline"
	"github.com/tubescribe/tubescribe/internal/platform"
	"github.com/tubescribe/tubescribe/internal/whisper"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	var copyToClipboard bool
	var timestamps bool

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a local audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcribeFn := app.transcribeFn
			if transcribeFn == nil {
				transcribeFn = app.transcribeLocalFile
			}

			copyFn := app.copyFn
			if copyFn == nil {
				copyFn = clipboard.CopyText
			}

			transcript, skipped, err := transcribeFn(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if skipped {
				app.log().Warn("audio considered silent; transcription skipped")
			}

			text := transcript.Text
			if timestamps {
				text = transcript.Timestamped()
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			if isBlankTranscript(text) {
				app.log().Warn(noSpeechHint())
			}

			if copyToClipboard {
				if isBlankTranscript(text) && !app.copyEmpty {
					return nil
				}

				if err := copyFn(cmd.Context(), text); err != nil {
					return err
				}
				app.log().Info("transcript copied to clipboard")
			}
			return nil
		},
	}

	bindModelFlags(cmd, app)
	bindTranscriptionFlags(cmd, app)
	cmd.Flags().BoolVar(&copyToClipboard, "copy", false, "Copy transcript to clipboard")
	cmd.Flags().BoolVar(&timestamps, "timestamps", false, "Print the transcript with segment timestamps")
	return cmd
}

// transcribeLocalFile converts an arbitrary audio file to speech-ready WAV
// and runs the recognizer on it. The converted file lives in a temp dir that
// is removed when the function returns.
func (a *appState) transcribeLocalFile(ctx context.Context, audioPath string) (*whisper.Transcript, bool, error) {
	audioPath = filepath.Clean(audioPath)
	if _, err := os.Stat(audioPath); err != nil {
		return nil, false, fmt.Errorf("audio file not found: %w", err)
	}

	ffmpegDir, err := platform.ResolveFFmpegDir()
	if err != nil {
		return nil, false, err
	}

	tool := ffmpeg.NewTool(ffmpegDir, a.log())
	if _, err := tool.Ensure(ctx); err != nil {
		return nil, false, err
	}

	tempDir, err := os.MkdirTemp("", "tubescribe-*")
	if err != nil {
		return nil, false, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(tempDir)
	}()

	wavPath := filepath.Join(tempDir, "speech-16k-mono.wav")
	if _, err := tool.ConvertForSpeech(ctx, audioPath, wavPath); err != nil {
		return nil, false, err
	}

	if a.cfg.SilenceGate {
		threshold := a.cfg.SilenceThresholdDBFS
		if threshold == 0 {
			threshold = pipeline.DefaultSilenceThresholdDBFS
		}
		silent, metrics, gateErr := audio.IsSilentWAV(wavPath, threshold)
		if gateErr != nil {
			a.log().Warn("silence gate analysis failed; continuing transcription", zap.Error(gateErr))
		} else if silent {
			a.log().Info(
				"audio considered silent; skipping transcription",
				zap.Float64("rms_dbfs", metrics.RMSdBFS),
				zap.Float64("peak_dbfs", metrics.PeakdBFS),
				zap.Float64("threshold_dbfs", threshold),
			)
			return &whisper.Transcript{Text: blankAudioToken}, true, nil
		}
	}

	modelDir, err := a.modelStorageDir()
	if err != nil {
		return nil, false, err
	}

	engine, err := whisper.NewCLIEngine(a.log())
	if err != nil {
		return nil, false, err
	}

	recognizer := whisper.NewRecognizer(engine, a.cfg.Model, modelDir, a.log())
	recognizer.AutoDownload = a.cfg.AutoDownload
	recognizer.NoProgress = a.noProgress

	a.log().Info("transcribing...",
		zap.String("audio", audioPath),
		zap.String("model", a.cfg.Model),
		zap.String("language", a.cfg.Language),
	)
	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()

	transcript, err := recognizer.Transcribe(ctx, wavPath, a.cfg.Language)
	stopSpinner()
	if err != nil {
		a.log().Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return nil, false, err
	}
	a.log().Info("transcription finished", zap.Duration("elapsed", time.Since(started)))

	return transcript, false, nil
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
