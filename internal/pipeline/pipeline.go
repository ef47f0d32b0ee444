package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tubescribe/tubescribe/internal/audio"
	"github.com/tubescribe/tubescribe/internal/fetch"
	"github.com/tubescribe/tubescribe/internal/ffmpeg"
	"github.com/tubescribe/tubescribe/internal/history"
	"github.com/tubescribe/tubescribe/internal/whisper"
)

// Stage identifies the pipeline phase a run is in. The values double as
// job states for the server's job registry.
type Stage string

const (
	StageFetch      Stage = "fetching"
	StageConvert    Stage = "converting"
	StageTranscribe Stage = "transcribing"
	StageExport     Stage = "exporting"
)

// DefaultSilenceThresholdDBFS is the RMS level below which converted audio
// is treated as silent.
const DefaultSilenceThresholdDBFS = -65

// blankAudioToken mirrors what whisper.cpp emits for silent input.
const blankAudioToken = "[BLANK_AUDIO]"

// Error is a stage-aware failure with optional command context.
type Error struct {
	Stage      Stage             `json:"stage"`
	Message    string            `json:"message"`
	CommandLog ffmpeg.CommandLog `json:"commandLog"`
	Err        error             `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", e.Stage, e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Fetcher turns a video URL into a local audio artifact.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Result, error)
}

// Transcoder guarantees an ffmpeg install and converts audio for speech
// recognition.
type Transcoder interface {
	Ensure(ctx context.Context) (ffmpeg.Location, error)
	ConvertForSpeech(ctx context.Context, inputPath, outputPath string) (ffmpeg.CommandLog, error)
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// Recognizer produces a transcript for a prepared 16 kHz mono WAV file.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath, language string) (*whisper.Transcript, error)
}

// Recorder persists one history entry per finished run.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) (int64, error)
}

// Request describes one end-to-end run.
type Request struct {
	URL        string
	DestDir    string
	Transcribe bool
	Language   string
	Format     string
	Quality    string

	// Model is recorded in run history; the Recognizer carries the actual
	// model selection.
	Model string

	// WriteTxt exports the transcript as a .txt next to the audio file.
	WriteTxt bool

	// SilenceGate skips transcription when the converted audio is below
	// SilenceThresholdDBFS.
	SilenceGate          bool
	SilenceThresholdDBFS float64

	OnStage    func(Stage)
	OnProgress func(fetch.Progress)
	OnLog      func(ffmpeg.CommandLog)
}

// Result contains the artifacts of a successful run.
type Result struct {
	AudioPath      string
	TranscriptPath string
	Transcript     *whisper.Transcript
	Title          string
	VideoID        string
	MediaDuration  time.Duration
	Elapsed        time.Duration
	SkippedSilent  bool
	Logs           []ffmpeg.CommandLog
}

// Runner drives fetch, conversion, transcription, and export for one URL
// at a time. The audio artifact lands in the destination folder as soon as
// the download succeeds, so a later transcription failure never discards
// downloaded audio.
type Runner struct {
	Fetcher    Fetcher
	Transcoder Transcoder
	Recognizer Recognizer
	History    Recorder
	Logger     *zap.Logger

	now func() time.Time
}

func NewRunner(fetcher Fetcher, transcoder Transcoder, recognizer Recognizer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		Fetcher:    fetcher,
		Transcoder: transcoder,
		Recognizer: recognizer,
		Logger:     logger,
		now:        time.Now,
	}
}

// Run executes one request. On failure it returns a *Error tagged with the
// stage that failed; no partial files are left in the destination folder
// unless the audio download itself already completed.
func (r *Runner) Run(ctx context.Context, req Request) (res *Result, err error) {
	started := r.clock()
	entry := history.Entry{
		URL:      req.URL,
		Model:    req.Model,
		Language: req.Language,
	}
	defer func() {
		entry.ElapsedMS = r.clock().Sub(started).Milliseconds()
		r.recordRun(entry, err)
	}()

	if err := fetch.ValidateURL(req.URL); err != nil {
		return nil, &Error{Stage: StageFetch, Message: "invalid video URL", Err: err}
	}
	if strings.TrimSpace(req.DestDir) == "" {
		return nil, &Error{Stage: StageFetch, Message: "destination directory is required"}
	}
	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return nil, &Error{Stage: StageFetch, Message: fmt.Sprintf("cannot create destination directory: %s", req.DestDir), Err: err}
	}

	emitStage(req.OnStage, StageFetch)
	loc, err := r.Transcoder.Ensure(ctx)
	if err != nil {
		return nil, &Error{Stage: StageFetch, Message: "ffmpeg is unavailable", Err: err}
	}

	fres, err := r.Fetcher.Fetch(ctx, fetch.Request{
		URL:        req.URL,
		Format:     req.Format,
		Quality:    req.Quality,
		FFmpegDir:  loc.Dir,
		OnProgress: req.OnProgress,
	})
	if err != nil {
		return nil, &Error{Stage: StageFetch, Message: "audio download failed", Err: err}
	}
	defer fres.Cleanup()

	entry.Title = fres.Title
	destPath, err := uniqueDestPath(req.DestDir, fres.SuggestedName)
	if err != nil {
		return nil, &Error{Stage: StageFetch, Message: "cannot pick a destination file name", Err: err}
	}
	if err := moveFile(fres.AudioPath, destPath); err != nil {
		return nil, &Error{Stage: StageFetch, Message: "cannot move audio into destination", Err: err}
	}
	entry.AudioPath = destPath

	duration := fres.Duration
	if duration <= 0 {
		if probed, err := r.Transcoder.ProbeDuration(ctx, destPath); err == nil {
			duration = probed
		} else {
			r.Logger.Debug("duration probe failed", zap.Error(err))
		}
	}
	entry.MediaSeconds = duration.Seconds()

	result := &Result{
		AudioPath:     destPath,
		Title:         fres.Title,
		VideoID:       fres.VideoID,
		MediaDuration: duration,
	}

	if !req.Transcribe {
		result.Elapsed = r.clock().Sub(started)
		r.Logger.Info("audio extracted",
			zap.String("title", result.Title),
			zap.String("audio", destPath),
			zap.Duration("elapsed", result.Elapsed))
		return result, nil
	}

	tempDir, err := os.MkdirTemp("", "tubescribe-*")
	if err != nil {
		return nil, &Error{Stage: StageConvert, Message: "failed to create temporary workspace", Err: err}
	}
	defer os.RemoveAll(tempDir)

	emitStage(req.OnStage, StageConvert)
	wavPath := filepath.Join(tempDir, "speech-16k-mono.wav")
	convertLog, err := r.Transcoder.ConvertForSpeech(ctx, destPath, wavPath)
	emitLog(req.OnLog, convertLog)
	result.Logs = append(result.Logs, convertLog)
	if err != nil {
		return nil, &Error{Stage: StageConvert, Message: "ffmpeg speech preprocessing failed", CommandLog: convertLog, Err: err}
	}

	transcript, skipped := r.gateSilence(req, wavPath)
	if !skipped {
		emitStage(req.OnStage, StageTranscribe)
		transcript, err = r.Recognizer.Transcribe(ctx, wavPath, req.Language)
		if err != nil {
			return nil, &Error{Stage: StageTranscribe, Message: "transcription failed", Err: err}
		}
	}
	result.Transcript = transcript
	result.SkippedSilent = skipped

	emitStage(req.OnStage, StageExport)
	if req.WriteTxt {
		txtPath := strings.TrimSuffix(destPath, filepath.Ext(destPath)) + ".txt"
		if err := os.WriteFile(txtPath, []byte(transcript.Text+"\n"), 0o644); err != nil {
			return nil, &Error{Stage: StageExport, Message: fmt.Sprintf("cannot write transcript file: %s", txtPath), Err: err}
		}
		result.TranscriptPath = txtPath
		entry.TranscriptPath = txtPath
	}

	result.Elapsed = r.clock().Sub(started)
	r.Logger.Info("run finished",
		zap.String("title", result.Title),
		zap.String("audio", result.AudioPath),
		zap.Bool("skipped_silent", skipped),
		zap.Duration("media", duration),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

// gateSilence checks the converted WAV against the silence threshold.
// Analysis errors never block transcription.
func (r *Runner) gateSilence(req Request, wavPath string) (*whisper.Transcript, bool) {
	if !req.SilenceGate {
		return nil, false
	}

	threshold := req.SilenceThresholdDBFS
	if threshold == 0 {
		threshold = DefaultSilenceThresholdDBFS
	}

	silent, metrics, err := audio.IsSilentWAV(wavPath, threshold)
	if err != nil {
		r.Logger.Warn("silence gate analysis failed; continuing transcription", zap.Error(err), zap.String("audio", wavPath))
		return nil, false
	}
	if !silent {
		return nil, false
	}

	r.Logger.Info("audio considered silent; skipping transcription",
		zap.Float64("rms_dbfs", metrics.RMSdBFS),
		zap.Float64("peak_dbfs", metrics.PeakdBFS),
		zap.Float64("threshold_dbfs", threshold))
	return &whisper.Transcript{Text: blankAudioToken}, true
}

func (r *Runner) recordRun(entry history.Entry, runErr error) {
	if r.History == nil {
		return
	}

	entry.Status = history.StatusDone
	if runErr != nil {
		entry.Status = history.StatusFailed
		entry.Error = runErr.Error()
	}

	// Recorded even when the run context is already canceled.
	if _, err := r.History.Record(context.Background(), entry); err != nil {
		r.Logger.Warn("failed to record run history", zap.Error(err))
	}
}

func (r *Runner) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

func emitStage(cb func(Stage), stage Stage) {
	if cb != nil {
		cb(stage)
	}
}

func emitLog(cb func(ffmpeg.CommandLog), log ffmpeg.CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// uniqueDestPath joins dir and name, appending a numeric suffix when the
// name is already taken.
func uniqueDestPath(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return path, nil
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 2; i <= 99; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, ext))
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}

// moveFile renames src to dst, falling back to a copy-and-delete when the
// rename crosses file systems. The copy goes through a temp file so dst is
// never left half written.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Remove(src)
}
