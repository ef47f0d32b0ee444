package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/tubescribe/tubescribe/internal/clipboard"
	"github.com/tubescribe/tubescribe/internal/config"
	"github.com/tubescribe/tubescribe/internal/diagnostics"
	"github.com/tubescribe/tubescribe/internal/fetch"
	"github.com/tubescribe/tubescribe/internal/ffmpeg"
	"github.com/tubescribe/tubescribe/internal/history"
	"github.com/tubescribe/tubescribe/internal/logging"
	"github.com/tubescribe/tubescribe/internal/pipeline"
	"github.com/tubescribe/tubescribe/internal/platform"
	"github.com/tubescribe/tubescribe/internal/version"
	"github.com/tubescribe/tubescribe/internal/whisper"
)

type appState struct {
	configFile string
	verbose    bool
	quiet      bool
	jsonLogs   bool
	noProgress bool

	// Flag shadows. Values are layered onto cfg only when the flag was set
	// on the command line, so config file and environment keep working.
	destDir      string
	model        string
	modelDir     string
	language     string
	format       string
	quality      string
	noTranscribe bool
	noTxt        bool
	autoDownload bool
	silenceGate  bool
	silenceDBFS  float64
	delay        time.Duration
	copyEmpty    bool

	cfg    config.Settings
	logger *zap.Logger
	out    io.Writer

	runFn         func(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	runAllFn      func(ctx context.Context, urls []string, base pipeline.Request, delay time.Duration) []pipeline.BatchItem
	copyFn        func(ctx context.Context, value string) error
	transcribeFn  func(ctx context.Context, audioPath string) (*whisper.Transcript, bool, error)
	checkFn       func(in diagnostics.Inputs) diagnostics.Report
	openHistoryFn func() (*history.Store, error)
}

type fetchFlowOptions struct {
	copyToClipboard bool
	timestamps      bool
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		out: os.Stdout,
	}
	app.copyFn = clipboard.CopyText

	cmd := &cobra.Command{
		Use:           "tubescribe <url> [url...]",
		Short:         "Download YouTube audio and transcribe it offline with whisper",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, Quiet: app.quiet, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger

			cfg, err := config.Load(app.configFile)
			if err != nil {
				return err
			}
			app.cfg = cfg
			app.applyFlagOverrides(cmd)
			app.cfg.Language = sanitizeLanguage(app.cfg.Language)
			return nil
		},
	}

	var flow fetchFlowOptions
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return app.runFetchFlow(cmd.Context(), args, flow)
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindGlobalFlags(cmd, app)
	bindFetchFlags(cmd, app)
	bindModelFlags(cmd, app)
	bindTranscriptionFlags(cmd, app)
	bindBatchFlag(cmd, app)
	cmd.Flags().BoolVar(&app.noTranscribe, "no-transcribe", false, "Only download audio, skip transcription")
	cmd.Flags().BoolVar(&app.noTxt, "no-txt", false, "Do not write the transcript .txt next to the audio file")
	cmd.Flags().BoolVar(&flow.copyToClipboard, "copy", false, "Copy transcript to clipboard")
	cmd.Flags().BoolVar(&flow.timestamps, "timestamps", false, "Print the transcript with segment timestamps")

	cmd.AddCommand(newGetCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newModelsCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newDoctorCmd(app))
	cmd.AddCommand(newHistoryCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindGlobalFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.configFile, "config", "", "Config file path (default: platform config dir)")
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", false, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.quiet, "quiet", false, "Only log warnings and errors")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", false, "Enable JSON logging")
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", false, "Disable progress indicators")
}

func bindFetchFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.destDir, "dest", "", "Destination folder for audio files (default: Downloads)")
	cmd.Flags().StringVar(&app.format, "format", fetch.DefaultFormat, "Audio format passed to yt-dlp (mp3|m4a|wav|...)")
	cmd.Flags().StringVar(&app.quality, "quality", fetch.DefaultQuality, "Audio quality passed to yt-dlp")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.model, "model", whisper.DefaultModel, "Model name or model file path")
	cmd.Flags().StringVar(&app.modelDir, "model-dir", "", "Directory where models are stored")
}

func bindTranscriptionFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.language, "language", "auto", "Language code (auto|en|de|...) for transcription")
	cmd.Flags().BoolVar(&app.autoDownload, "auto-download", true, "Automatically download missing models")
	cmd.Flags().BoolVar(&app.silenceGate, "silence-gate", true, "Detect near-silent audio and skip transcription")
	cmd.Flags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", pipeline.DefaultSilenceThresholdDBFS, "Silence gate threshold in dBFS")
	cmd.Flags().BoolVar(&app.copyEmpty, "copy-empty", false, "Copy blank transcripts to clipboard")
}

func bindBatchFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().DurationVar(&app.delay, "delay", 0, "Pause between downloads when multiple URLs are given, e.g. 2s")
}

// applyFlagOverrides copies flag values into the loaded config, but only
// for flags the user actually set. Precedence: flags > env > config file.
func (a *appState) applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("dest") {
		a.cfg.DestDir = a.destDir
	}
	if flags.Changed("model") {
		a.cfg.Model = a.model
	}
	if flags.Changed("model-dir") {
		a.cfg.ModelDir = a.modelDir
	}
	if flags.Changed("language") {
		a.cfg.Language = a.language
	}
	if flags.Changed("format") {
		a.cfg.Format = a.format
	}
	if flags.Changed("quality") {
		a.cfg.Quality = a.quality
	}
	if flags.Changed("no-transcribe") {
		a.cfg.Transcribe = !a.noTranscribe
	}
	if flags.Changed("no-txt") {
		a.cfg.WriteTxt = !a.noTxt
	}
	if flags.Changed("auto-download") {
		a.cfg.AutoDownload = a.autoDownload
	}
	if flags.Changed("silence-gate") {
		a.cfg.SilenceGate = a.silenceGate
	}
	if flags.Changed("silence-threshold-dbfs") {
		a.cfg.SilenceThresholdDBFS = a.silenceDBFS
	}
	if flags.Changed("delay") {
		a.cfg.Delay = a.delay
	}
}

// runFetchFlow is the default command path: download one or more URLs and
// optionally transcribe them. URLs are validated before any tool or network
// work starts.
func (a *appState) runFetchFlow(ctx context.Context, urls []string, opts fetchFlowOptions) error {
	for _, url := range urls {
		if err := fetch.ValidateURL(url); err != nil {
			return err
		}
	}

	runFn := a.runFn
	runAllFn := a.runAllFn
	if runFn == nil || runAllFn == nil {
		runner, _, cleanup, err := a.buildRunner()
		if err != nil {
			return err
		}
		defer cleanup()
		if runFn == nil {
			runFn = runner.Run
		}
		if runAllFn == nil {
			runAllFn = runner.RunAll
		}
	}

	if len(urls) == 1 {
		req := a.buildRequest(urls[0])
		ui := newStageUI(a.progressEnabled())
		req.OnStage = ui.onStage
		req.OnProgress = ui.onProgress

		res, err := runFn(ctx, req)
		ui.done()
		if err != nil {
			return err
		}
		return a.reportResult(ctx, res, opts)
	}

	items := runAllFn(ctx, urls, a.buildRequest(""), a.cfg.Delay)
	for _, item := range items {
		if item.Err != nil {
			a.log().Error("download failed", zap.String("url", item.URL), zap.Error(item.Err))
			continue
		}
		fmt.Fprintln(a.outWriter(), item.Result.AudioPath)
	}

	if failed := pipeline.Failed(items); failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(items))
	}
	return nil
}

func (a *appState) reportResult(ctx context.Context, res *pipeline.Result, opts fetchFlowOptions) error {
	a.log().Info("audio saved", zap.String("path", res.AudioPath), zap.Duration("elapsed", res.Elapsed))
	if res.TranscriptPath != "" {
		a.log().Info("transcript saved", zap.String("path", res.TranscriptPath))
	}

	if res.Transcript == nil {
		fmt.Fprintln(a.outWriter(), res.AudioPath)
		return nil
	}

	text := res.Transcript.Text
	if opts.timestamps {
		text = res.Transcript.Timestamped()
	}
	fmt.Fprintln(a.outWriter(), text)

	if isBlankTranscript(text) {
		a.log().Warn(noSpeechHint())
		if !a.copyEmpty {
			return nil
		}
	}

	if !opts.copyToClipboard {
		return nil
	}

	copyFn := a.copyFn
	if copyFn == nil {
		copyFn = clipboard.CopyText
	}
	if err := copyFn(ctx, text); err != nil {
		if errors.Is(err, clipboard.ErrUnavailable) {
			a.log().Warn("clipboard tool unavailable; transcript left on stdout")
			return nil
		}
		a.log().Warn("failed to copy transcript to clipboard; transcript left on stdout", zap.Error(err))
		return nil
	}

	a.log().Info("transcript copied to clipboard")
	return nil
}

// buildRunner assembles the real pipeline from config. The whisper engine is
// only required when transcription is enabled, so audio-only runs work on
// machines without whisper-cli. History failures never block a run; the
// returned store is nil in that case.
func (a *appState) buildRunner() (*pipeline.Runner, *history.Store, func(), error) {
	logger := a.log()

	ffmpegDir, err := platform.ResolveFFmpegDir()
	if err != nil {
		return nil, nil, nil, err
	}

	fetcher := fetch.New("", ffmpegDir, logger)
	tool := ffmpeg.NewTool(ffmpegDir, logger)

	var recognizer pipeline.Recognizer
	if a.cfg.Transcribe {
		modelDir, dirErr := a.modelStorageDir()
		if dirErr != nil {
			return nil, nil, nil, dirErr
		}

		engine, engineErr := whisper.NewCLIEngine(logger)
		if engineErr != nil {
			return nil, nil, nil, engineErr
		}

		rec := whisper.NewRecognizer(engine, a.cfg.Model, modelDir, logger)
		rec.AutoDownload = a.cfg.AutoDownload
		rec.NoProgress = a.noProgress
		recognizer = rec
	}

	runner := pipeline.NewRunner(fetcher, tool, recognizer, logger)

	cleanup := func() {}
	store, storeErr := a.openHistory()
	if storeErr != nil {
		logger.Warn("run history disabled", zap.Error(storeErr))
		store = nil
	} else {
		runner.History = store
		cleanup = func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.Warn("close history store", zap.Error(closeErr))
			}
		}
	}

	return runner, store, cleanup, nil
}

func (a *appState) buildRequest(url string) pipeline.Request {
	return pipeline.Request{
		URL:                  url,
		DestDir:              a.cfg.DestDir,
		Transcribe:           a.cfg.Transcribe,
		Language:             a.cfg.Language,
		Format:               a.cfg.Format,
		Quality:              a.cfg.Quality,
		Model:                a.cfg.Model,
		WriteTxt:             a.cfg.WriteTxt,
		SilenceGate:          a.cfg.SilenceGate,
		SilenceThresholdDBFS: a.cfg.SilenceThresholdDBFS,
	}
}

func (a *appState) openHistory() (*history.Store, error) {
	if a.openHistoryFn != nil {
		return a.openHistoryFn()
	}

	path, err := platform.ResolveHistoryPath()
	if err != nil {
		return nil, err
	}
	return history.Open(path)
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.cfg.ModelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}
