package whisper

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tubescribe/tubescribe/internal/download"
)

// Recognizer binds an engine to a model selection. Model weights are
// downloaded on first use when AutoDownload is set; otherwise a missing
// model is an error that names the setup command.
type Recognizer struct {
	Engine       Engine
	ModelRef     string
	ModelDir     string
	AutoDownload bool
	NoProgress   bool
	Logger       *zap.Logger

	downloadFn func(ctx context.Context, opts download.Options) error
}

func NewRecognizer(engine Engine, modelRef, modelDir string, logger *zap.Logger) *Recognizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recognizer{
		Engine:       engine,
		ModelRef:     modelRef,
		ModelDir:     modelDir,
		AutoDownload: true,
		Logger:       logger,
		downloadFn:   download.File,
	}
}

// Transcribe ensures the model weights exist and runs the engine.
func (r *Recognizer) Transcribe(ctx context.Context, audioPath, language string) (*Transcript, error) {
	resolved, err := r.EnsureModel(ctx)
	if err != nil {
		return nil, err
	}

	return r.Engine.Transcribe(ctx, TranscriptionRequest{
		AudioPath: audioPath,
		ModelPath: resolved.Path,
		Language:  language,
	})
}

// EnsureModel resolves the configured model and downloads missing weights.
func (r *Recognizer) EnsureModel(ctx context.Context) (ResolvedModel, error) {
	resolved, err := ResolveModel(r.ModelRef, r.ModelDir)
	if err != nil {
		return ResolvedModel{}, err
	}

	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !r.AutoDownload {
		return ResolvedModel{}, fmt.Errorf("model %q is missing at %s; run `tubescribe setup --model %s` or enable auto-download", resolved.Name, resolved.Path, resolved.Name)
	}

	r.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
	if err := r.download(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		Description:    "downloading " + resolved.Name,
		ExpectedSHA256: resolved.SHA256,
		NoProgress:     r.NoProgress,
		Logger:         r.log(),
	}); err != nil {
		return ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, nil
}

func (r *Recognizer) download(ctx context.Context, opts download.Options) error {
	if r.downloadFn == nil {
		return download.File(ctx, opts)
	}
	return r.downloadFn(ctx, opts)
}

func (r *Recognizer) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
